package notify

import "fmt"

// SupportEscalation is queued when a support conversation needs a
// provider's human attention, mirroring the chat-escalation notification
// the marketplace's support bot raises.
type SupportEscalation struct {
	ProviderPubkeyHex string
	ConversationID    int64
	ContractID        string
	Summary           string
	ConversationLink  string
}

// NewSupportEscalation builds the conversation link from baseURL the same
// way the teacher's support bot composes its notification payload.
func NewSupportEscalation(providerPubkeyHex string, conversationID int64, contractID, summary, baseURL string) SupportEscalation {
	return SupportEscalation{
		ProviderPubkeyHex: providerPubkeyHex,
		ConversationID:    conversationID,
		ContractID:        contractID,
		Summary:           summary,
		ConversationLink:  fmt.Sprintf("%s/app/accounts/1/conversations/%d", baseURL, conversationID),
	}
}

// ToMessage renders a SupportEscalation for delivery over ch to recipient
// (an email address, telegram chat id, or phone number depending on ch).
func (s SupportEscalation) ToMessage(ch Channel, recipient string) Message {
	body := fmt.Sprintf(
		"A customer conversation requires your attention.\n\nContract ID: %s\nSummary: %s\n\nView conversation: %s\n",
		s.ContractID, s.Summary, s.ConversationLink,
	)
	return Message{
		Channel:   ch,
		Recipient: recipient,
		Subject:   "Customer Support Conversation Needs Attention",
		Body:      body,
	}
}
