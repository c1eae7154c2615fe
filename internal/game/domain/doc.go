// Package domain defines the core types for hosted game tables: sessions,
// players, game objects, actions, and dice rolls.
//
// The types are transport-agnostic. Network payload mapping lives in
// internal/server and persistence mapping lives in internal/storage.
package domain
