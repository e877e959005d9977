package samplebot

import (
	"github.com/Anmol9893/botservice/pkg/recognizer"
)

// DefaultRules are the keyword rules used when no rules file or remote
// classifier is configured. Earlier intents win.
const DefaultRules = `
intents:
  - name: Cancel
    patterns: ['^\s*(cancel|stop|quit|never ?mind)\b']
  - name: Help
    patterns: ['^\s*help\b', '\bi need help\b']
  - name: WhatCanYouDo
    patterns: ['what (can|do) you do', 'what are you able to do']
  - name: NoName
    patterns: ["won'?t give you my name", '\bno name\b', "rather not (say|tell)"]
  - name: WhyDoYouAsk
    patterns: ['why do you (ask|want|need)']
  - name: WhoAreYou
    patterns: ['who are you', '\bmy name is\b', '\bcall me\b']
    entities:
      - name: userName
        pattern: '(?:my name is|call me)\s+([\p{L}''-]+(?:\s+[\p{L}''-]+)*)'
  - name: Greeting
    patterns: ['^\s*(hi|hello|hey|howdy)\b', 'good (morning|afternoon|evening)']
`

// NewRecognizer chains structured payload intents, then rules, then extra
// recognizers such as a remote classifier. An empty rulesPath uses
// DefaultRules.
func NewRecognizer(rulesPath string, minScore float64, extra ...recognizer.Recognizer) (*recognizer.Chain, error) {
	var (
		rules *recognizer.RuleRecognizer
		err   error
	)
	if rulesPath == "" {
		rules, err = recognizer.ParseRules([]byte(DefaultRules))
	} else {
		rules, err = recognizer.LoadRules(rulesPath)
	}
	if err != nil {
		return nil, err
	}
	chain := append([]recognizer.Recognizer{recognizer.PayloadRecognizer{}, rules}, extra...)
	return recognizer.NewChain(minScore, chain...), nil
}
