package query

import (
	"fmt"

	"github.com/heirloom-restoration/workshop/internal/model"
)

const (
	teamListKey  = "team:list"
	dashboardKey = "dashboard:stats"
)

func portfolioListKey(f model.PortfolioFilter) string {
	return fmt.Sprintf("portfolio:list:category=%s:featured=%t:limit=%d", f.Category, f.FeaturedOnly, f.Limit)
}

func portfolioItemKey(id string) string {
	return "portfolio:item:" + id
}

func customerListKey(limit int) string {
	return fmt.Sprintf("customers:list:limit=%d", limit)
}

func conversationListKey(status model.ConversationStatus) string {
	if status == "" {
		status = "all"
	}
	return "chat:conversations:status=" + string(status)
}
