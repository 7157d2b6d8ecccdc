// Package domain contains core concepts of the chat service.
// No runtime, network, or UI logic should be added here.
package domain

// User is created by registration and mutated only through the admin
// update operation. Users are never physically deleted.
type User struct {
	ID       string
	Login    string
	IsActive bool
	IsAdmin  bool
}
