package domain

import (
	"fmt"
	"strings"
)

// Contact methods for the peer-group signup.
const (
	ContactText  = "text"
	ContactEmail = "email"
)

var (
	meetingFormats = []string{"in-person", "virtual", "hybrid"}
	peerLocations  = []string{"local", "separated", "mixed"}
	firmSizes      = []string{"small", "medium", "large", "enterprise"}
	contactMethods = []string{ContactText, ContactEmail}
)

// Known interest and industry values offered by the signup form.
var (
	PeerInterests  = []string{"business-development", "project-management", "technology-adoption", "sustainability", "workforce-development", "risk-management", "financial-management", "leadership"}
	PeerIndustries = []string{"residential", "commercial", "industrial", "heavy-civil", "specialty", "design-build", "engineering", "architecture"}
)

const (
	minExperience = 1
	maxExperience = 5
)

// PeerGroupSignup holds the preferences collected by the peer-group form.
type PeerGroupSignup struct {
	MeetingFormat   string   `json:"meeting_format"`
	PeerLocation    string   `json:"peer_location"`
	FirmSize        string   `json:"firm_size"`
	ExperienceLevel int      `json:"experience_level"`
	Interests       []string `json:"interests"`
	Industry        string   `json:"industry"`
	PaidMembership  bool     `json:"paid_membership"`
	ContactMethod   string   `json:"contact_method"`
	Name            string   `json:"name"`
	Phone           string   `json:"phone,omitempty"`
	Email           string   `json:"email,omitempty"`
}

// NewPeerGroupSignup returns a signup carrying the form defaults.
func NewPeerGroupSignup() PeerGroupSignup {
	return PeerGroupSignup{
		MeetingFormat:   "in-person",
		PeerLocation:    "local",
		FirmSize:        "medium",
		ExperienceLevel: 3,
		ContactMethod:   ContactText,
	}
}

// Contact returns the phone number or email address matching the contact method.
func (p PeerGroupSignup) Contact() string {
	if p.ContactMethod == ContactEmail {
		return strings.TrimSpace(p.Email)
	}
	return strings.TrimSpace(p.Phone)
}

// Validate checks every field and returns an *AggregateError listing all failures.
func (p PeerGroupSignup) Validate() error {
	var errs []error
	oneOf := func(key, value string, allowed []string) {
		if !contains(allowed, value) {
			errs = append(errs, &ValidationError{Key: key, Reason: fmt.Sprintf("must be one of %s", strings.Join(allowed, ", "))})
		}
	}

	oneOf("meeting_format", p.MeetingFormat, meetingFormats)
	oneOf("peer_location", p.PeerLocation, peerLocations)
	oneOf("firm_size", p.FirmSize, firmSizes)
	if p.ExperienceLevel < minExperience || p.ExperienceLevel > maxExperience {
		errs = append(errs, &ValidationError{Key: "experience_level", Reason: fmt.Sprintf("must be between %d and %d", minExperience, maxExperience)})
	}
	if len(p.Interests) == 0 {
		errs = append(errs, &ValidationError{Key: "interests", Reason: "Please select at least one area of interest"})
	}
	for _, interest := range p.Interests {
		if !contains(PeerInterests, interest) {
			errs = append(errs, &ValidationError{Key: "interests", Reason: fmt.Sprintf("unknown interest %q", interest)})
		}
	}
	if p.Industry == "" {
		errs = append(errs, &ValidationError{Key: "industry", Reason: "Please select an industry"})
	} else {
		oneOf("industry", p.Industry, PeerIndustries)
	}
	oneOf("contact_method", p.ContactMethod, contactMethods)
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, &ValidationError{Key: "name", Reason: "Please enter your name"})
	}
	switch p.ContactMethod {
	case ContactText:
		if strings.TrimSpace(p.Phone) == "" {
			errs = append(errs, &ValidationError{Key: "phone", Reason: "Please enter your phone number"})
		}
	case ContactEmail:
		if strings.TrimSpace(p.Email) == "" {
			errs = append(errs, &ValidationError{Key: "email", Reason: "Please enter your email address"})
		} else if err := ValidateEmail(p.Email); err != nil {
			errs = append(errs, &ValidationError{Key: "email", Reason: "Please enter a valid email address"})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
