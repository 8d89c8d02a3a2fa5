// Package events defines the closed topic set and the payload documents that
// travel over it: sensor readings, automation scenarios, UI commands and the
// legacy sensor registrations.
package events
