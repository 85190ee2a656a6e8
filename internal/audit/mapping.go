package audit

import "strings"

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// Route overrides for endpoints whose verb does not describe the change.
var routeOverrides = map[string]ActionResource{
	"PATCH /api/admin/bookings/{bkgRef}": {Action: "status_changed", Resource: "booking"},
	"POST /api/auth/login":                {Action: "login", Resource: "session"},
	"POST /api/auth/logout":               {Action: "logout", Resource: "session"},
}

// ParseRoute returns action and resource for an HTTP method and mux path template
// (e.g. GET /api/admin/bookings/{bkgRef}). Resource is the first path segment after the
// /api or /api/admin prefix, singularised. Action is list or get for reads depending
// on whether the template ends in a path variable, and create, update or delete otherwise.
func ParseRoute(method, template string) ActionResource {
	method = strings.ToUpper(method)
	if ar, ok := routeOverrides[method+" "+template]; ok {
		return ar
	}
	path := strings.TrimPrefix(template, "/api")
	path = strings.TrimPrefix(path, "/admin")
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	resource := singular(segments[0])
	last := segments[len(segments)-1]
	byID := strings.HasPrefix(last, "{")
	return ActionResource{Action: methodToAction(method, byID), Resource: resource}
}

func singular(s string) string {
	if strings.HasSuffix(s, "ies") {
		return strings.TrimSuffix(s, "ies") + "y"
	}
	if len(s) > 1 && strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss") {
		return strings.TrimSuffix(s, "s")
	}
	return s
}

func methodToAction(method string, byID bool) string {
	switch method {
	case "GET", "HEAD":
		if byID {
			return "get"
		}
		return "list"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
