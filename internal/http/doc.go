// Package http provides the JSON API, its middleware and the OAuth sign-in flow.
//
// The router exposes the following endpoints:
//   - GET /api/oauth/login?refer=, GET /api/oauth/callback: provider sign-in.
//     The callback records the login, opens a session, sets the sealed
//     `session` cookie and redirects to the stored refer path.
//   - POST /api/logout, GET /api/session: revoke or describe the current session.
//   - GET /api/events (from, to, offset, max, direction), GET /api/events/{id}:
//     listings capped at the viewer's access level. POST, PATCH and DELETE
//     require an officer.
//   - GET|POST /api/events/{id}/attend: check in while the event runs.
//     GET /api/events/{id}/attendance and DELETE /api/events/{id}/attendance/{email}
//     are officer reports.
//   - /api/categories, /api/news: public reads, officer writes.
//   - GET /api/account, POST /api/account/sync: the viewer's own page.
//   - /api/users: officer listing, self or officer updates, advisor level changes.
//   - GET /healthz, GET /metrics.
//
// Errors share the `errorResponse` payload defined in responder.go. Request
// DTOs live alongside their handlers.
package http
