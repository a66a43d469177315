package domain

// Role is fixed for the lifetime of a session.
type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	default:
		return "unknown"
	}
}

// LocalCollection is the sub-collection this role writes its candidates to.
func (r Role) LocalCollection() string {
	if r == RoleCaller {
		return CallerCandidates
	}
	return CalleeCandidates
}

// RemoteCollection is the sub-collection this role watches for the peer's candidates.
func (r Role) RemoteCollection() string {
	if r == RoleCaller {
		return CalleeCandidates
	}
	return CallerCandidates
}
