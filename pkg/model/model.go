// Package model defines the core domain types for the Photon chat server.
package model

// Permission represents a specific action that can be checked against an account.
type Permission int

const (
	PermEditAnyMessage Permission = iota
	PermDeleteAnyMessage
	PermSetAdminStatus
	PermQueryUsers
)
