package event

import (
	"fmt"

	"github.com/tshetendev/Startup-Investment/internal/model"
)

// Message 发给某个用户的一条通知
type Message struct {
	Address string
	Text    string
}

// Render 根据事件生成通知
func Render(ev *model.EventModel) ([]Message, error) {
	p, err := ev.Payload()
	if err != nil {
		return nil, fmt.Errorf("decode payload of event %d: %w", ev.Id, err)
	}
	creator := func(format string, args ...interface{}) []Message {
		return []Message{{Address: p.CreatorAddress, Text: fmt.Sprintf(format, args...)}}
	}

	switch ev.EventType {
	case model.EventInvestmentSettled:
		return []Message{
			{Address: p.InvestorAddress, Text: fmt.Sprintf("You have invested %s in project \"%s\".", p.Amount, p.CampaignTitle)},
			{Address: p.CreatorAddress, Text: fmt.Sprintf("Your project \"%s\" received an investment of %s from %s.", p.CampaignTitle, p.Amount, p.InvestorAddress)},
		}, nil
	case model.EventCampaignCompleted:
		if p.Manual {
			return creator("Your project \"%s\" has been marked as completed.", p.CampaignTitle), nil
		}
		return creator("Congratulations! Your project \"%s\" has reached its target amount and is now completed.", p.CampaignTitle), nil
	case model.EventCampaignApproved:
		return creator("Your project \"%s\" has been approved and is now active.", p.CampaignTitle), nil
	case model.EventCampaignRejected:
		return creator("Your project \"%s\" has been rejected.", p.CampaignTitle), nil
	case model.EventCampaignEnded:
		return creator("Your project \"%s\" has been marked as ended.", p.CampaignTitle), nil
	case model.EventCampaignExpired:
		return creator("Your project \"%s\" has reached its end date and is now ended.", p.CampaignTitle), nil
	case model.EventCampaignDeleted:
		return creator("Your project \"%s\" has been deleted by the admin.", p.CampaignTitle), nil
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.EventType)
	}
}
