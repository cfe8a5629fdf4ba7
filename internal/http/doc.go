// Package http provides HTTP handlers and middleware for the IntelliDesk API.
//
// Callers are identified by the X-User-ID and X-User-Role headers, which a
// fronting gateway is trusted to set. The router exposes:
//   - POST /chat: body {"message"}; returns the engine Reply
//     {"reply","flow_id","kind","step","outcome","candidates","replayed"}. An
//     Idempotency-Key header replays the first reply for the same user and key.
//     Rate limited per user.
//   - DELETE /chat/flows/{id}: cancels one of the caller's flows.
//   - GET /meetings, POST /meetings, GET /meetings/{id}, DELETE /meetings/{id}:
//     direct booking and cancellation exchanging the meetingDTO payload defined
//     in meeting_handler.go. A full slot answers 409 with suggestions.
//   - GET /rooms: the room catalog.
//   - GET /equipment, POST /equipment/requests, POST /equipment/approvals,
//     POST /equipment/{id}/return, POST /equipment/{id}/verify: the custody
//     lifecycle. Approvals take {"code"} and are admin only.
//   - GET /tickets, POST /tickets, GET /tickets/{id},
//     POST /tickets/{id}/escalate, POST /tickets/{id}/close.
//   - GET /admin/overview: every meeting, ticket and equipment item with
//     per-status counts. Admins and superusers.
//   - GET /admin/audit-log?limit=N: the newest audit events, superuser only.
//   - GET /healthz: liveness, no identity required.
//
// Errors use {"error_code","message","errors"} with stable codes per sentinel.
package http
