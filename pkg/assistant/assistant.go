// Package assistant routes free-text support requests to canned responses.
package assistant

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Intent is the recognized purpose of a request.
type Intent string

const (
	IntentPassword     Intent = "password"
	IntentSlowNetwork  Intent = "slow_network"
	IntentTicketStatus Intent = "ticket_status"
	IntentHelpDesk     Intent = "help_desk"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the chat history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Reply is the assistant's answer to one prompt.
type Reply struct {
	Intent Intent `json:"intent"`
	Text   string `json:"text"`
	// TicketID is set when the request opened a ticket.
	TicketID string `json:"ticket_id,omitempty"`
}

// Router classifies prompts by keyword. Tickets it opens are remembered so
// status requests can list them.
type Router struct {
	newTicketID func() string
	tickets     []string
}

// Option configures a Router.
type Option func(*Router)

// WithTicketIDs sets the ticket identifier source.
func WithTicketIDs(next func() string) Option {
	return func(r *Router) {
		r.newTicketID = next
	}
}

// NewRouter creates a Router.
func NewRouter(opts ...Option) *Router {
	r := &Router{newTicketID: newTicketID}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newTicketID() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "TKT-" + id[:6]
}

// Respond answers a prompt. Matching is case-insensitive and checks intents
// in a fixed order: password, slow network, ticket status.
func (r *Router) Respond(prompt string) Reply {
	p := strings.ToLower(prompt)

	switch {
	case strings.Contains(p, "password"):
		return Reply{
			Intent: IntentPassword,
			Text:   "I can help with that. Please navigate to the Identity Management Tab to reset your CAC PIN or network password securely.",
		}
	case strings.Contains(p, "slow") || strings.Contains(p, "internet"):
		id := r.newTicketID()
		r.tickets = append(r.tickets, id)
		return Reply{
			Intent:   IntentSlowNetwork,
			Text:     "I've detected high latency in your sector. A ticket (" + id + ") has been auto-generated. Switching your endpoint to a backup gateway...",
			TicketID: id,
		}
	case strings.Contains(p, "ticket"):
		return Reply{Intent: IntentTicketStatus, Text: r.ticketStatus()}
	default:
		return Reply{
			Intent: IntentHelpDesk,
			Text:   "I'm routing this request to the Help Desk. Estimated wait time: 2 minutes.",
		}
	}
}

// Tickets returns the tickets opened so far.
func (r *Router) Tickets() []string {
	return append([]string(nil), r.tickets...)
}

func (r *Router) ticketStatus() string {
	switch len(r.tickets) {
	case 0:
		return "You have no active tickets."
	case 1:
		return "You have 1 active ticket: " + r.tickets[0] + " (Network Lag). Status: In Progress."
	default:
		return "You have " + strconv.Itoa(len(r.tickets)) + " active tickets: " + strings.Join(r.tickets, ", ") + ". Status: In Progress."
	}
}
