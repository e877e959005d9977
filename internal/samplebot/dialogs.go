package samplebot

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Anmol9893/botservice/pkg/dialog"
)

const (
	nameMinLength = 3
	cityMinLength = 5
)

// minLength accepts trimmed text of at least n runes.
func minLength(n int) dialog.Validator {
	return func(in dialog.Input) (any, bool) {
		text := strings.TrimSpace(in.Text)
		if utf8.RuneCountInString(text) < n {
			return nil, false
		}
		return text, true
	}
}

func builtins(promptRetries int) ([]dialog.Dialog, error) {
	name, err := dialog.NewPrompt(NamePrompt, "What is your name?", minLength(nameMinLength),
		dialog.WithRetryPrompt(fmt.Sprintf("Names need to be at least %d characters long. What is your name?", nameMinLength)),
		dialog.WithGaveUpMessage("Let's skip your name for now."),
		dialog.WithMaxRetries(promptRetries))
	if err != nil {
		return nil, err
	}
	city, err := dialog.NewPrompt(CityPrompt, "Where do you live?", minLength(cityMinLength),
		dialog.WithRetryPrompt(fmt.Sprintf("City names need to be at least %d characters long. Where do you live?", cityMinLength)),
		dialog.WithGaveUpMessage("Let's skip your city for now."),
		dialog.WithMaxRetries(promptRetries))
	if err != nil {
		return nil, err
	}
	greeting, err := dialog.NewWaterfall(GreetingDialog, askName, askCity, greetUser)
	if err != nil {
		return nil, err
	}
	whatCanYouDo := dialog.NewMessage(WhatCanYouDo,
		dialog.Suggestions("I can greet you, remember your name and where you live, and take you through a few forms.",
			"hello", "my name is", "help"))

	return []dialog.Dialog{
		greeting.Uses(NamePrompt, CityPrompt),
		name,
		city,
		newCollectName(),
		whatCanYouDo,
	}, nil
}

// The greeting waterfall only asks for what the profile is missing.

func askName(ctx context.Context, sc *dialog.StepContext) (dialog.Result, error) {
	dc := sc.Context()
	profile, _, err := profileProp.Get(ctx, dc.Storage(), dc.Turn().Activity.UserID)
	if err != nil {
		return dialog.Result{}, err
	}
	if profile.Name != "" {
		return sc.Next(ctx, profile.Name)
	}
	return sc.Prompt(ctx, NamePrompt, nil)
}

func askCity(ctx context.Context, sc *dialog.StepContext) (dialog.Result, error) {
	if sc.Reason == dialog.ReasonGaveUp {
		return sc.End(ctx, nil)
	}
	sc.Values()["name"] = sc.Result

	dc := sc.Context()
	profile, _, err := profileProp.Get(ctx, dc.Storage(), dc.Turn().Activity.UserID)
	if err != nil {
		return dialog.Result{}, err
	}
	if profile.City != "" {
		return sc.Next(ctx, profile.City)
	}
	return sc.Prompt(ctx, CityPrompt, nil)
}

func greetUser(ctx context.Context, sc *dialog.StepContext) (dialog.Result, error) {
	if sc.Reason == dialog.ReasonGaveUp {
		return sc.End(ctx, nil)
	}
	values := sc.Values()
	values["city"] = sc.Result

	profile := UserProfile{Name: fmt.Sprint(values["name"]), City: fmt.Sprint(values["city"])}
	dc := sc.Context()
	if err := profileProp.Set(dc.Storage(), dc.Turn().Activity.UserID, profile); err != nil {
		return dialog.Result{}, err
	}
	dc.SendText(fmt.Sprintf("Hi %s, from %s, nice to meet you!", profile.Name, profile.City))
	return sc.End(ctx, values)
}

func sendHelp(_ context.Context, dc *dialog.Context) error {
	dc.SendText(HelpText)
	return nil
}

// capitalize upper-cases the first rune of s.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
