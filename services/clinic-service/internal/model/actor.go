package model

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
	// RoleSystem is used by in-process collaborators such as the payment webhook.
	RoleSystem Role = "system"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RolePatient, RoleDoctor, RoleAdmin, RoleSystem:
		return r, true
	}
	return "", false
}

// Actor identifies who is performing an operation.
type Actor struct {
	Role Role
	ID   string
}

func System(name string) Actor {
	return Actor{Role: RoleSystem, ID: name}
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
