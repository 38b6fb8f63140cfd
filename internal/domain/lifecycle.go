package domain

const (
	OrderStatusPending   = "Pending"
	OrderStatusApproved  = "Approved"
	OrderStatusShipped   = "Shipped"
	OrderStatusReceived  = "Received"
	OrderStatusCancelled = "Cancelled"
)

const (
	PlanStatusPlanned    = "Planned"
	PlanStatusInProgress = "In_Progress"
	PlanStatusCompleted  = "Completed"
	PlanStatusCancelled  = "Cancelled"
)

const (
	DetailStatusPending    = "Pending"
	DetailStatusInProgress = "In_Progress"
	DetailStatusCompleted  = "Completed"
	DetailStatusCancelled  = "Cancelled"
)

const (
	BatchStatusActive   = "Active"
	BatchStatusSoldOut  = "SoldOut"
	BatchStatusExpired  = "Expired"
	BatchStatusRecalled = "Recalled"
)

// Machine is an explicit transition table. States absent from the table are terminal.
type Machine struct {
	name        string
	states      map[string]struct{}
	transitions map[string]map[string]struct{}
}

func NewMachine(name string, table map[string][]string) Machine {
	m := Machine{
		name:        name,
		states:      make(map[string]struct{}),
		transitions: make(map[string]map[string]struct{}, len(table)),
	}
	for from, targets := range table {
		m.states[from] = struct{}{}
		set := make(map[string]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
			m.states[to] = struct{}{}
		}
		m.transitions[from] = set
	}
	return m
}

func (m Machine) Name() string {
	return m.name
}

func (m Machine) Valid(state string) bool {
	_, ok := m.states[state]
	return ok
}

func (m Machine) CanTransition(from, to string) bool {
	targets, ok := m.transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

func (m Machine) Terminal(state string) bool {
	return m.Valid(state) && len(m.transitions[state]) == 0
}

var OrderLifecycle = NewMachine("order", map[string][]string{
	OrderStatusPending:  {OrderStatusApproved, OrderStatusCancelled},
	OrderStatusApproved: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:  {OrderStatusReceived},
})

var PlanLifecycle = NewMachine("production plan", map[string][]string{
	PlanStatusPlanned:    {PlanStatusInProgress, PlanStatusCancelled},
	PlanStatusInProgress: {PlanStatusCompleted, PlanStatusCancelled},
})

var PlanDetailLifecycle = NewMachine("plan detail", map[string][]string{
	DetailStatusPending:    {DetailStatusInProgress, DetailStatusCompleted, DetailStatusCancelled},
	DetailStatusInProgress: {DetailStatusCompleted, DetailStatusCancelled},
})

// Expired is derived at read time, so Active -> Expired is never written.
var ProductBatchLifecycle = NewMachine("product batch", map[string][]string{
	BatchStatusActive:  {BatchStatusSoldOut, BatchStatusRecalled},
	BatchStatusSoldOut: {BatchStatusRecalled},
	BatchStatusExpired: {BatchStatusRecalled},
})
