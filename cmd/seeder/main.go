package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/vedanschi/pebble-outreach/internal/db"
	"github.com/vedanschi/pebble-outreach/internal/model"
	"github.com/vedanschi/pebble-outreach/internal/repository"
)

// Seeds a demo campaign with contacts, a primary template and a follow-up
// chain so the sweep has something to work with locally.
func main() {
	godotenv.Load()

	conn, err := db.Open()
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	if err := db.Migrate(conn); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	ctx := context.Background()
	campaignRepo := &repository.CampaignRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}
	ruleRepo := &repository.FollowUpRuleRepository{DB: conn}

	campaign := &model.Campaign{
		Name:        "Pebble launch outreach",
		Description: "Warm intro to design partners",
		Status:      model.CampaignStatusActive,
	}
	if err := campaignRepo.Create(ctx, campaign); err != nil {
		log.Fatalf("seed campaign: %v", err)
	}

	contacts := []*model.Contact{
		{
			CampaignID:  campaign.ID,
			FirstName:   "Ava",
			LastName:    "Stone",
			Email:       "ava@example.com",
			CompanyName: "Stonebridge Labs",
			CustomFields: map[string]string{
				"jobTitle": "Head of Growth",
				"city":     "Austin",
			},
		},
		{
			CampaignID:  campaign.ID,
			FirstName:   "Liam",
			LastName:    "Okafor",
			Email:       "liam@example.com",
			CompanyName: "Okafor Ventures",
		},
	}
	for _, c := range contacts {
		if err := contactRepo.Create(ctx, c); err != nil {
			log.Fatalf("seed contact %s: %v", c.Email, err)
		}
	}

	tmpl := &model.EmailTemplate{
		CampaignID:      campaign.ID,
		Name:            "Launch intro",
		SubjectTemplate: "Quick question for {{companyName}}",
		BodyTemplate:    "Hi {{firstName}},\n\nWe are opening a few design-partner slots and thought of {{companyName}}. Would a 15 minute chat next week work?\n\nBest,\nThe Pebble team",
		UserPrompt:      "friendly design partner intro",
	}
	if err := templateRepo.InsertPrimary(ctx, tmpl); err != nil {
		log.Fatalf("seed template: %v", err)
	}

	rules := []*model.FollowUpRule{
		{
			CampaignID:      campaign.ID,
			SubjectTemplate: "Re: quick question for {{companyName}}",
			BodyTemplate:    "Hi {{firstName}}, floating this back up in case it got buried.",
			DelayDays:       3,
			Condition:       model.ConditionNotOpened,
			IsActive:        true,
		},
		{
			CampaignID:      campaign.ID,
			SubjectTemplate: "Closing the loop, {{firstName}}",
			BodyTemplate:    "Hi {{firstName}}, last note from me. If the timing is wrong, no worries at all.",
			DelayDays:       7,
			Condition:       model.ConditionSentAnyway,
			IsActive:        true,
		},
	}
	for _, r := range rules {
		if err := ruleRepo.Create(ctx, r); err != nil {
			log.Fatalf("seed rule: %v", err)
		}
	}

	log.Printf("seeded campaign %d with %d contacts, 1 template, %d rules", campaign.ID, len(contacts), len(rules))
}
