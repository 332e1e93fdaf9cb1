// Package customerdetect resolves which customer an inbound order
// belongs to by aggregating independent signals (sender email, domain,
// document customer number, fuzzy company name, LLM hint) with a
// probabilistic OR and selecting or flagging the result.
package customerdetect

import (
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/shared/mathutil"
)

// Signal kinds and their base scores.
const (
	SignalFromEmailExact    = "from_email_exact"
	SignalFromDomain        = "from_domain"
	SignalDocCustomerNumber = "doc_customer_number"
	SignalDocCompanyName    = "doc_company_name"
	SignalLLMHintNumber     = "llm_hint_erp_customer_number"
	SignalLLMHintEmail      = "llm_hint_email"
)

const (
	scoreEmailExact     = 0.95
	scoreDomain         = 0.75
	scoreCustomerNumber = 0.98
	nameThreshold       = 0.40
	nameScoreBase       = 0.40
	nameScoreCap        = 0.85
	aggregateCap        = 0.999
	docScanWindow       = 2000
	maxCandidates       = 5
)

// genericDomains never produce a from_domain signal; anyone can have a
// mailbox there.
var genericDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"gmx.de":         true,
	"gmx.net":        true,
	"gmx.at":         true,
	"outlook.com":    true,
	"outlook.de":     true,
	"hotmail.com":    true,
	"hotmail.de":     true,
	"live.com":       true,
	"yahoo.com":      true,
	"yahoo.de":       true,
	"web.de":         true,
	"t-online.de":    true,
	"freenet.de":     true,
	"aol.com":        true,
	"icloud.com":     true,
	"protonmail.com": true,
	"proton.me":      true,
}

// customerNumberPatterns locate labeled customer numbers in document
// text.
var customerNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)kundennr\.?\s*[:#]?\s*([A-Za-z0-9-]+)`),
	regexp.MustCompile(`(?i)kunden-?nummer\s*[:#]?\s*([A-Za-z0-9-]+)`),
	regexp.MustCompile(`(?i)customer\s*(?:no\.?|number)\s*[:#]?\s*([A-Za-z0-9-]+)`),
	regexp.MustCompile(`(?i)debitor(?:ennummer|-?nr\.?)?\s*[:#]?\s*([A-Za-z0-9-]+)`),
	regexp.MustCompile(`(?i)client\s*(?:no\.?|number)\s*[:#]?\s*([A-Za-z0-9-]+)`),
}

// SignalHit is one matched signal on one customer.
type SignalHit struct {
	Kind  string  `json:"kind"`
	Score float64 `json:"score"`
	Value string  `json:"value,omitempty"`
}

// Candidate is one customer with its aggregated score.
type Candidate struct {
	CustomerID uuid.UUID   `json:"customer_id"`
	Name       string      `json:"name"`
	Aggregate  float64     `json:"aggregate"`
	Signals    []SignalHit `json:"signals"`
}

// Detection is the detector's outcome.
type Detection struct {
	Selected   *Candidate  `json:"selected,omitempty"`
	Ambiguous  bool        `json:"ambiguous"`
	Reason     string      `json:"reason,omitempty"`
	Candidates []Candidate `json:"candidates"`
}

// Input is one detection request.
type Input struct {
	FromEmail    string
	DocumentText string
	LLMHint      *domain.CustomerHint
}

// Detector aggregates signals over a tenant's customer catalog.
type Detector struct {
	log *logrus.Logger
}

// NewDetector builds a Detector.
func NewDetector(logger *logrus.Logger) *Detector {
	return &Detector{log: logger}
}

// Detect ranks customers for the input and auto-selects or flags
// ambiguity per the tenant's thresholds.
func (d *Detector) Detect(input Input, customers []domain.Customer, contacts []domain.CustomerContact, settings domain.TenantSettings) Detection {
	s := settings.Normalized()

	hits := make(map[uuid.UUID][]SignalHit)
	addHit := func(customerID uuid.UUID, hit SignalHit) {
		// The same signal kind fires at most once per customer; a
		// second contact on the same domain adds no information.
		for _, existing := range hits[customerID] {
			if existing.Kind == hit.Kind {
				return
			}
		}
		hits[customerID] = append(hits[customerID], hit)
	}

	d.emailSignals(input.FromEmail, contacts, addHit)
	d.documentNumberSignals(input.DocumentText, customers, addHit)
	d.companyNameSignals(input.DocumentText, customers, addHit)
	d.llmHintSignals(input.LLMHint, customers, contacts, addHit)

	nameByID := make(map[uuid.UUID]string, len(customers))
	for _, c := range customers {
		nameByID[c.ID] = c.Name
	}

	candidates := make([]Candidate, 0, len(hits))
	for customerID, signalHits := range hits {
		agg := 1.0
		for _, hit := range signalHits {
			agg *= 1 - hit.Score
		}
		agg = 1 - agg
		if agg > aggregateCap {
			agg = aggregateCap
		}
		sort.Slice(signalHits, func(i, j int) bool { return signalHits[i].Score > signalHits[j].Score })
		candidates = append(candidates, Candidate{
			CustomerID: customerID,
			Name:       nameByID[customerID],
			Aggregate:  agg,
			Signals:    signalHits,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Aggregate != candidates[j].Aggregate {
			return candidates[i].Aggregate > candidates[j].Aggregate
		}
		return candidates[i].Name < candidates[j].Name
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	detection := Detection{Candidates: candidates}
	if len(candidates) == 0 {
		detection.Ambiguous = true
		detection.Reason = "no customer matched any signal"
		return detection
	}

	top1 := candidates[0]
	gap := top1.Aggregate
	if len(candidates) > 1 {
		gap = top1.Aggregate - candidates[1].Aggregate
	}

	switch {
	case top1.Aggregate < s.CustomerAutoSelectThreshold:
		detection.Ambiguous = true
		detection.Reason = "top candidate below the auto-select threshold"
	case gap < s.CustomerMinGap:
		detection.Ambiguous = true
		detection.Reason = "top candidates are too close to separate"
	default:
		selected := top1
		detection.Selected = &selected
	}
	return detection
}

func (d *Detector) emailSignals(fromEmail string, contacts []domain.CustomerContact, addHit func(uuid.UUID, SignalHit)) {
	email := strings.ToLower(strings.TrimSpace(fromEmail))
	if email == "" {
		return
	}
	domainPart := emailDomain(email)

	for _, contact := range contacts {
		contactEmail := strings.ToLower(strings.TrimSpace(contact.Email))
		if contactEmail == email {
			addHit(contact.CustomerID, SignalHit{Kind: SignalFromEmailExact, Score: scoreEmailExact, Value: email})
			continue
		}
		if domainPart != "" && !genericDomains[domainPart] && contact.Domain() == domainPart {
			addHit(contact.CustomerID, SignalHit{Kind: SignalFromDomain, Score: scoreDomain, Value: domainPart})
		}
	}
}

func (d *Detector) documentNumberSignals(text string, customers []domain.Customer, addHit func(uuid.UUID, SignalHit)) {
	window := text
	if len(window) > docScanWindow {
		window = window[:docScanWindow]
	}

	for _, pattern := range customerNumberPatterns {
		for _, m := range pattern.FindAllStringSubmatch(window, -1) {
			number := strings.TrimSpace(m[1])
			if number == "" {
				continue
			}
			for _, customer := range customers {
				if customer.ERPCustomerNumber != "" && strings.EqualFold(customer.ERPCustomerNumber, number) {
					addHit(customer.ID, SignalHit{Kind: SignalDocCustomerNumber, Score: scoreCustomerNumber, Value: number})
				}
			}
		}
	}
}

func (d *Detector) companyNameSignals(text string, customers []domain.Customer, addHit func(uuid.UUID, SignalHit)) {
	lines := headerLines(text)
	if len(lines) == 0 {
		return
	}

	for _, customer := range customers {
		if customer.Name == "" {
			continue
		}
		best := 0.0
		for _, line := range lines {
			if sim := mathutil.TrigramSimilarity(line, customer.Name); sim > best {
				best = sim
			}
		}
		if best >= nameThreshold {
			score := nameScoreBase + 0.60*best
			if score > nameScoreCap {
				score = nameScoreCap
			}
			addHit(customer.ID, SignalHit{Kind: SignalDocCompanyName, Score: score, Value: customer.Name})
		}
	}
}

func (d *Detector) llmHintSignals(hint *domain.CustomerHint, customers []domain.Customer, contacts []domain.CustomerContact, addHit func(uuid.UUID, SignalHit)) {
	if hint == nil {
		return
	}

	if number := strings.TrimSpace(hint.ERPCustomerNumber); number != "" {
		for _, customer := range customers {
			if customer.ERPCustomerNumber != "" && strings.EqualFold(customer.ERPCustomerNumber, number) {
				addHit(customer.ID, SignalHit{Kind: SignalLLMHintNumber, Score: scoreCustomerNumber, Value: number})
			}
		}
	}

	if email := strings.ToLower(strings.TrimSpace(hint.Email)); email != "" {
		for _, contact := range contacts {
			if strings.ToLower(strings.TrimSpace(contact.Email)) == email {
				addHit(contact.CustomerID, SignalHit{Kind: SignalLLMHintEmail, Score: scoreEmailExact, Value: email})
			}
		}
	}
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}

// headerLines returns the first non-empty lines of the document, the
// region where the ordering company names itself.
func headerLines(text string) []string {
	window := text
	if len(window) > docScanWindow {
		window = window[:docScanWindow]
	}

	var lines []string
	for _, line := range strings.Split(window, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lines = append(lines, trimmed)
		if len(lines) >= 15 {
			break
		}
	}
	return lines
}
