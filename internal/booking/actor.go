/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import "github.com/friendsincode/slotkeeper/internal/models"

// Actor is the authenticated identity an operation runs as.
type Actor struct {
	ID   string
	Role models.Role
}

// ProvidesSlot reports whether the actor is the provider that owns slot.
func (a Actor) ProvidesSlot(slot *models.TimeSlot) bool {
	return slot != nil && a.Role == models.RoleProvider && slot.ProviderID == a.ID
}
