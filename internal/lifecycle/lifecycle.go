// Package lifecycle validates order status transitions. It is a pure
// component: the transition graph and the role authorization table are data,
// and nothing here touches storage.
package lifecycle

import "marketplace/internal/models"

// transitions is the directed graph of legal status changes.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:   {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:   {models.OrderStatusDelivered, models.OrderStatusCancelled},
	models.OrderStatusDelivered: {},
	models.OrderStatusCancelled: {},
}

type edge struct {
	from, to models.OrderStatus
}

// roleEdges lists which role may request which edge. Buyers drive no
// transitions directly; their cancellations arrive via payment failure events
// applied by the system role.
var roleEdges = map[models.Role]map[edge]bool{
	models.RoleSeller: {
		{models.OrderStatusPending, models.OrderStatusConfirmed}: true,
		{models.OrderStatusConfirmed, models.OrderStatusShipped}: true,
	},
	models.RoleSupplier: {
		{models.OrderStatusConfirmed, models.OrderStatusShipped}:   true,
		{models.OrderStatusShipped, models.OrderStatusDelivered}:   true,
		{models.OrderStatusPending, models.OrderStatusCancelled}:   true,
		{models.OrderStatusConfirmed, models.OrderStatusCancelled}: true,
		{models.OrderStatusShipped, models.OrderStatusCancelled}:   true,
	},
	models.RoleSystem: {
		{models.OrderStatusPending, models.OrderStatusConfirmed}:   true,
		{models.OrderStatusPending, models.OrderStatusCancelled}:   true,
		{models.OrderStatusConfirmed, models.OrderStatusCancelled}: true,
		{models.OrderStatusShipped, models.OrderStatusCancelled}:   true,
	},
}

// CanTransition reports whether the graph contains the edge from -> to.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the status.
func IsTerminal(s models.OrderStatus) bool {
	return len(transitions[s]) == 0
}

// Check validates a transition request in two steps: reachability in the
// graph, then role authorization for the edge. Requesting the status the
// order is already in is a no-op success (noop=true), never an error; this is
// what makes duplicate webhook deliveries safe.
func Check(role models.Role, from, to models.OrderStatus) (noop bool, err error) {
	if from == to {
		return true, nil
	}
	if !CanTransition(from, to) {
		return false, &models.InvalidTransitionError{From: from, To: to, Role: role}
	}
	if !roleEdges[role][edge{from, to}] {
		return false, &models.InvalidTransitionError{From: from, To: to, Role: role}
	}
	return false, nil
}
