// Package httpapi is the JSON HTTP surface of the authcore server. It routes with
// chi, throttles logins through internal/rate and maps engine errors with
// middleware.StatusFor.
//
// Routes:
//
//	POST   /api/v1/auth/register
//	POST   /api/v1/auth/login
//	POST   /api/v1/auth/refresh
//	POST   /api/v1/auth/logout               (bearer)
//	GET    /api/v1/users/me                  (bearer)
//	PUT    /api/v1/users/me                  (bearer)
//	DELETE /api/v1/users/me                  (bearer)
//	PUT    /api/v1/users/me/password         (bearer)
//	GET    /api/v1/admin/users?search=       (manage_users)
//	GET    /api/v1/admin/users/{id}          (manage_users)
//	PUT    /api/v1/admin/users/{id}/active   (manage_users)
//	POST   /api/v1/admin/users/{id}/verify   (manage_users)
//	PUT    /api/v1/admin/users/{id}          (admin)
//	POST   /api/v1/admin/users/{id}/unlock   (admin)
//	GET    /api/v1/admin/stats               (admin)
//	GET    /health
//	GET    /metrics
package httpapi
