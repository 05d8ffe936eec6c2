package assistant

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bankbot/internal/domain"
	"bankbot/internal/storage/sqlite"
)

type factLookup func(key string) (string, error)

type answerRule func(facts factLookup) (string, error)

// answerRules maps intent labels to answer synthesis. Labels missing here
// (for example intents created from feedback) answer with an empty string.
var answerRules = map[string]answerRule{
	"account_types": func(facts factLookup) (string, error) {
		v, err := factOr(facts, "account_types", "")
		if err != nil {
			return "", err
		}
		if v == "" {
			return "We offer Savings, Current, and FD accounts.", nil
		}
		return sentence("We currently offer: " + v), nil
	},
	"loan_rates": func(facts factLookup) (string, error) {
		var rates [3]string
		for i, key := range []string{"loan_personal_rate", "loan_home_rate", "loan_auto_rate"} {
			v, err := factOr(facts, key, "N/A")
			if err != nil {
				return "", err
			}
			rates[i] = v
		}
		return sentence(fmt.Sprintf("Loan interest rates — Personal: %s, Home: %s, Auto: %s", rates[0], rates[1], rates[2])), nil
	},
	"branch_hours": func(facts factLookup) (string, error) {
		weekday, err := factOr(facts, "branch_hours_weekday", "Mon–Fri: 9–3")
		if err != nil {
			return "", err
		}
		weekend, err := factOr(facts, "branch_hours_weekend", "Sat: 9–12; Sun: Closed")
		if err != nil {
			return "", err
		}
		return sentence("Branch hours — Weekdays: "+weekday) + " " + sentence("Weekends: "+weekend), nil
	},
	"atm_availability": fixed("ATMs are available 24/7 at most branches. Please share your city to suggest nearby ATMs."),
	"greeting":         fixed("Hello! I’m your banking assistant. How can I help?"),
	"goodbye":          fixed("Goodbye! Happy to help anytime."),
	"thanks":           fixed("You're welcome! Anything else I can do?"),
}

// sentence ends s with a single period; fact values such as "14.7% p.a."
// already carry one.
func sentence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ".") {
		return s
	}
	return s + "."
}

func fixed(text string) answerRule {
	return func(factLookup) (string, error) { return text, nil }
}

// factOr treats a missing or empty fact as fallback.
func factOr(facts factLookup, key, fallback string) (string, error) {
	v, err := facts(key)
	if errors.Is(err, domain.ErrFactNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup fact %s: %w", key, err)
	}
	if v == "" {
		return fallback, nil
	}
	return v, nil
}

// Answer synthesizes the reply for a resolved intent label.
func Answer(db *sql.DB, label string) (string, error) {
	rule, ok := answerRules[label]
	if !ok {
		return "", nil
	}
	return rule(func(key string) (string, error) { return sqlite.GetFact(db, key) })
}

// HasAnswer reports whether label has a dedicated answer rule.
func HasAnswer(label string) bool {
	_, ok := answerRules[label]
	return ok
}
