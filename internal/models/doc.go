// Package models defines the core domain models for PayPals.
//
// # Entities
//
//   - User: registered account with optional PayNow details
//   - Circle / CircleMember: a group of users and their roles in it
//   - Transaction / TransactionMember: a shared expense and each participant's share
//   - Invitation: a pending request for someone to join a circle
//   - Notification: an in-app message for one user
//   - AuditLog: append-only trail of administrative actions
//
// # Conventions
//
//  1. IDs are UUID strings generated by the store when empty.
//  2. Timestamps are Unix seconds.
//  3. Money uses decimal.Decimal rounded to cents; never float64.
//  4. Relationships are held as ID strings, not pointers.
package models
