package provider

import (
	"context"
	"fmt"

	"cancelflow-be/internal/entity"
)

// ManualStrategy never cancels anything. It produces the instruction set that every
// other strategy falls back to.
type ManualStrategy struct {
	templates map[string]entity.ManualInstructionSet
}

func NewManualStrategy() *ManualStrategy {
	return &ManualStrategy{templates: builtinTemplates()}
}

func (s *ManualStrategy) Method() entity.CancellationMethod {
	return entity.MethodManual
}

func (s *ManualStrategy) Cancel(ctx context.Context, cc CancelContext) Result {
	return Result{
		ManualInstructions: s.Instructions(cc),
		Error: NewError(CodeManualInterventionRequired,
			fmt.Sprintf("%s must be cancelled by the subscriber", cc.ProviderName()), nil),
	}
}

// Instructions resolves, in order: the provider's configured template, a built-in
// template for the normalized name, the generic script.
func (s *ManualStrategy) Instructions(cc CancelContext) *entity.ManualInstructionSet {
	var set entity.ManualInstructionSet
	switch {
	case cc.Provider != nil && cc.Provider.Settings.Instructions != nil:
		set = cloneInstructions(*cc.Provider.Settings.Instructions)
	case cc.Provider != nil:
		if tpl, ok := s.templates[cc.Provider.NormalizedName]; ok {
			set = cloneInstructions(tpl)
		} else {
			set = genericInstructions(cc)
		}
	default:
		set = genericInstructions(cc)
	}

	if set.Provider == "" {
		set.Provider = cc.ProviderName()
	}
	if cc.Provider != nil {
		if set.CancelURL == "" {
			set.CancelURL = cc.Provider.Settings.CancelURL
		}
		if set.Contact == (entity.ContactInfo{}) {
			set.Contact = cc.Provider.Settings.Contact
		}
	}
	for i := range set.Steps {
		set.Steps[i].Order = i + 1
	}
	return &set
}

func cloneInstructions(src entity.ManualInstructionSet) entity.ManualInstructionSet {
	dst := src
	dst.Steps = append([]entity.InstructionStep(nil), src.Steps...)
	dst.Prerequisites = append([]string(nil), src.Prerequisites...)
	dst.CommonIssues = append([]entity.CommonIssue(nil), src.CommonIssues...)
	return dst
}

func genericInstructions(cc CancelContext) entity.ManualInstructionSet {
	name := cc.ProviderName()
	plan := ""
	if cc.Subscription != nil && cc.Subscription.PlanName != "" {
		plan = fmt.Sprintf(" (%s plan)", cc.Subscription.PlanName)
	}

	return entity.ManualInstructionSet{
		Title: fmt.Sprintf("Cancel your %s subscription%s", name, plan),
		Steps: []entity.InstructionStep{
			{Title: "Sign in", Description: fmt.Sprintf("Sign in to your %s account on their website or app.", name)},
			{Title: "Open account settings", Description: "Go to Account, Settings or Billing."},
			{Title: "Find your subscription", Description: "Open the section that lists your plan or membership."},
			{Title: "Cancel", Description: "Choose Cancel subscription or Cancel membership and confirm."},
			{Title: "Keep the confirmation", Description: "Save the confirmation email or screenshot and enter the code here."},
		},
		Prerequisites: []string{
			"Your account email and password",
			"Access to the email inbox linked to the account",
		},
		CommonIssues: []entity.CommonIssue{
			{Issue: "The cancel option is missing", Solution: "The subscription may be billed through an app store or a partner. Cancel it there."},
			{Issue: "You are offered a discount", Solution: "Decline the offer to continue with the cancellation."},
		},
		EstimatedMinutes: 10,
	}
}

func builtinTemplates() map[string]entity.ManualInstructionSet {
	return map[string]entity.ManualInstructionSet{
		"netflix": {
			Title:    "Cancel your Netflix membership",
			Provider: "Netflix",
			Steps: []entity.InstructionStep{
				{Title: "Sign in", Description: "Sign in at netflix.com.", URL: "https://www.netflix.com/login"},
				{Title: "Open Account", Description: "Select your profile icon, then Account."},
				{Title: "Cancel membership", Description: "Under Membership, select Cancel Membership.", URL: "https://www.netflix.com/cancelplan"},
				{Title: "Confirm", Description: "Select Finish Cancellation."},
			},
			Prerequisites: []string{"The account owner's login"},
			Contact:       entity.ContactInfo{ChatURL: "https://help.netflix.com/contactus", Hours: "24/7"},
			CommonIssues: []entity.CommonIssue{
				{Issue: "Billed through a partner", Solution: "Cancel with the partner (mobile carrier, TV provider or app store)."},
				{Issue: "Several profiles or accounts", Solution: "Make sure you are signed in to the account that is being billed."},
			},
			EstimatedMinutes: 5,
			CancelURL:        "https://www.netflix.com/cancelplan",
		},
		"spotify": {
			Title:    "Cancel Spotify Premium",
			Provider: "Spotify",
			Steps: []entity.InstructionStep{
				{Title: "Sign in", Description: "Sign in to your account page.", URL: "https://www.spotify.com/account"},
				{Title: "Manage plan", Description: "Under Your plan, select Change plan."},
				{Title: "Cancel Premium", Description: "Scroll to Spotify Free and select Cancel Premium."},
				{Title: "Confirm", Description: "Follow the prompts and confirm."},
			},
			Prerequisites: []string{"The account login (not a Family member account)"},
			Contact:       entity.ContactInfo{ChatURL: "https://support.spotify.com/contact-spotify-support/"},
			CommonIssues: []entity.CommonIssue{
				{Issue: "Premium offered at a discount", Solution: "Decline the offer to continue."},
				{Issue: "You are a Family or Duo member", Solution: "Only the plan manager can cancel."},
			},
			EstimatedMinutes: 5,
		},
		"hulu": {
			Title:    "Cancel your Hulu subscription",
			Provider: "Hulu",
			Steps: []entity.InstructionStep{
				{Title: "Sign in", Description: "Sign in and open the Account page.", URL: "https://secure.hulu.com/account"},
				{Title: "Cancel", Description: "Select Cancel Your Subscription."},
				{Title: "Skip offers", Description: "Select Continue to Cancel on any offer page."},
				{Title: "Confirm", Description: "Select Cancel Subscription."},
			},
			Prerequisites: []string{"Your Hulu login"},
			Contact:       entity.ContactInfo{Phone: "1-888-265-6650", Hours: "24/7"},
			CommonIssues: []entity.CommonIssue{
				{Issue: "Part of the Disney bundle", Solution: "Cancel the bundle from your Disney+ account instead."},
			},
			EstimatedMinutes: 7,
		},
		"disney_plus": {
			Title:    "Cancel your Disney+ subscription",
			Provider: "Disney+",
			Steps: []entity.InstructionStep{
				{Title: "Sign in", Description: "Sign in on a web browser.", URL: "https://www.disneyplus.com/login"},
				{Title: "Open Account", Description: "Select your profile, then Account."},
				{Title: "Select the subscription", Description: "Under Subscription, select your plan."},
				{Title: "Cancel", Description: "Select Cancel Subscription and confirm."},
			},
			Prerequisites: []string{"Your Disney+ login", "Access to your verification email"},
			Contact:       entity.ContactInfo{ChatURL: "https://help.disneyplus.com/", Hours: "24/7"},
			CommonIssues: []entity.CommonIssue{
				{Issue: "A one-time passcode is required", Solution: "Check the email linked to your account for the code."},
			},
			EstimatedMinutes: 8,
		},
	}
}
