// Package samplebot wires the Basic Bot: a greeting flow that learns the
// user's name and city, an identity prompt, help and cancel interruptions,
// and any declarative forms loaded from the dialog directory.
package samplebot

import (
	"fmt"

	"github.com/Anmol9893/botservice/pkg/bot"
	"github.com/Anmol9893/botservice/pkg/dialog"
	"github.com/Anmol9893/botservice/pkg/dispatch"
	"github.com/Anmol9893/botservice/pkg/state"
)

// Dialog ids.
const (
	GreetingDialog dialog.ID = "GreetingDialog"
	NamePrompt     dialog.ID = "NamePrompt"
	CityPrompt     dialog.ID = "CityPrompt"
	CollectName    dialog.ID = "CollectName"
	WhatCanYouDo   dialog.ID = "WhatCanYouDo"
)

// Intents produced by DefaultRules.
const (
	IntentGreeting     = "Greeting"
	IntentHelp         = "Help"
	IntentCancel       = "Cancel"
	IntentWhoAreYou    = "WhoAreYou"
	IntentWhatCanYouDo = "WhatCanYouDo"
	IntentNoName       = "NoName"
	IntentWhyDoYouAsk  = "WhyDoYouAsk"
)

// Fixed responses.
const (
	WelcomeText      = "Welcome to the Basic Bot."
	HelpText         = "I understand greetings, being asked for help, or being asked to cancel what I am doing."
	CancelledText    = "Ok. I've cancelled our last activity."
	NothingToCancel  = "Sure, but there is nothing to cancel.."
	ConfirmCancel    = "Are you sure you want to cancel?"
	CancelConfirmed  = "Sure. I've cancelled that!"
	DenyWhileNaming  = "Sorry! I'm unable to process that. You can say 'cancel' to cancel this conversation.."
	AnythingElseText = "Is there anything else I can help you with?"
	FallbackText     = "I'm still learning.. Sorry, I do not know how to help you with that."
	FallbackHint     = "Try typing `help` or `hello`."
)

// UserProfileProperty is the user property holding UserProfile.
const UserProfileProperty = "userProfile"

// UserProfile is what the bot learns about a user.
type UserProfile struct {
	Name string `json:"name,omitempty"`
	City string `json:"city,omitempty"`
}

var profileProp = state.NewProperty[UserProfile](state.ScopeUser, UserProfileProperty)

// Dialogs builds the built-in dialogs plus the compiled forms.
func Dialogs(forms []*dialog.Definition, promptRetries int) ([]dialog.Dialog, error) {
	if promptRetries <= 0 {
		promptRetries = dialog.DefaultMaxRetries
	}
	dialogs, err := builtins(promptRetries)
	if err != nil {
		return nil, err
	}
	for _, def := range forms {
		compiled, err := def.Compile(promptRetries)
		if err != nil {
			return nil, fmt.Errorf("form %q: %w", def.Name, err)
		}
		dialogs = append(dialogs, compiled...)
	}
	return dialogs, nil
}

// Config is the dispatcher configuration. Each form is routed from its
// declared intents.
func Config(forms []*dialog.Definition) dispatch.Config {
	routes := map[string]dialog.ID{
		IntentGreeting:     GreetingDialog,
		IntentWhoAreYou:    CollectName,
		IntentWhatCanYouDo: WhatCanYouDo,
	}
	for _, def := range forms {
		for _, intent := range def.Intents {
			routes[intent] = dialog.ID(def.Name)
		}
	}

	return dispatch.Config{
		Routes: routes,
		Interruptions: []dispatch.Interruption{
			{Intent: IntentHelp, Mode: dispatch.ModeHandle, Handler: sendHelp, Reprompt: true},
			{Intent: IntentCancel, Mode: dispatch.ModeCancel, Message: CancelledText, Confirm: &dispatch.Confirmation{
				Prompt:   ConfirmCancel,
				Accepted: CancelConfirmed,
				Dialogs:  []dialog.ID{CollectName, NamePrompt, CityPrompt},
			}},
		},
		Policy: dispatch.Policy{
			dispatch.DenyWhileActive{Intent: IntentWhatCanYouDo, Dialogs: []dialog.ID{CollectName}, Reply: DenyWhileNaming},
			dispatch.DenyWhenIdle{Intent: IntentCancel, Reply: NothingToCancel},
		},
		Fallback:  []string{FallbackText, FallbackHint},
		Completed: AnythingElseText,
		Welcome:   []dialog.Reply{welcomeCard(), dialog.Text(WelcomeText)},
	}
}

// NewRuntime builds the registry and dispatcher for forms.
func NewRuntime(forms []*dialog.Definition, promptRetries int, opts ...dispatch.Option) (*bot.Runtime, error) {
	dialogs, err := Dialogs(forms, promptRetries)
	if err != nil {
		return nil, err
	}
	reg, err := dialog.NewRegistry(dialogs...)
	if err != nil {
		return nil, err
	}
	d, err := dispatch.New(Config(forms), opts...)
	if err != nil {
		return nil, err
	}
	return bot.NewRuntime(reg, d)
}

func welcomeCard() dialog.Reply {
	return dialog.Reply{
		Attachments: []dialog.Attachment{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: map[string]any{
				"type":    "AdaptiveCard",
				"version": "1.0",
				"body": []any{
					map[string]any{"type": "TextBlock", "size": "Medium", "weight": "Bolder", "text": WelcomeText},
					map[string]any{"type": "TextBlock", "wrap": true, "text": HelpText},
				},
			},
		}},
		SuggestedActions: []string{"hello", "help"},
	}
}
