package assistant

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	ids := []string{"TKT-492", "TKT-493", "TKT-494"}
	n := 0
	return func() string {
		id := ids[n]
		n++
		return id
	}
}

func TestRespond(t *testing.T) {
	tests := []struct {
		prompt     string
		wantIntent Intent
		wantTicket bool
	}{
		{prompt: "Reset my password", wantIntent: IntentPassword},
		{prompt: "PASSWORD and internet broken", wantIntent: IntentPassword},
		{prompt: "Internet is slow", wantIntent: IntentSlowNetwork, wantTicket: true},
		{prompt: "the vpn is SLOW today", wantIntent: IntentSlowNetwork, wantTicket: true},
		{prompt: "Check ticket status", wantIntent: IntentTicketStatus},
		{prompt: "printer on fire", wantIntent: IntentHelpDesk},
		{prompt: "", wantIntent: IntentHelpDesk},
	}

	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			reply := NewRouter(WithTicketIDs(sequentialIDs())).Respond(tt.prompt)

			assert.Equal(t, tt.wantIntent, reply.Intent)
			assert.NotEmpty(t, reply.Text)
			if tt.wantTicket {
				assert.Equal(t, "TKT-492", reply.TicketID)
				assert.Contains(t, reply.Text, "TKT-492")
			} else {
				assert.Empty(t, reply.TicketID)
			}
		})
	}
}

func TestTicketStatusTracksOpenedTickets(t *testing.T) {
	r := NewRouter(WithTicketIDs(sequentialIDs()))

	assert.Equal(t, "You have no active tickets.", r.Respond("ticket?").Text)

	r.Respond("internet down")
	assert.Contains(t, r.Respond("ticket status").Text, "1 active ticket: TKT-492")

	r.Respond("still slow")
	status := r.Respond("any ticket updates")
	assert.Contains(t, status.Text, "2 active tickets: TKT-492, TKT-493")
	assert.Equal(t, []string{"TKT-492", "TKT-493"}, r.Tickets())
}

func TestDefaultTicketIDs(t *testing.T) {
	reply := NewRouter().Respond("slow")
	require.NotEmpty(t, reply.TicketID)
	assert.Regexp(t, regexp.MustCompile(`^TKT-[0-9A-F]{6}$`), reply.TicketID)
}
