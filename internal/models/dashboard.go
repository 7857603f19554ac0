package models

import "time"

const (
	SectionBanner      = "banner"
	SectionAbout       = "about"
	SectionWhatWeDo    = "whatWeDo"
	SectionWhatWeStand = "whatWeStand"
	SectionWhyBehind   = "whyBehind"
	SectionOurSpaces   = "ourSpaces"
)

// DashboardSections lists image sections in display order.
var DashboardSections = []string{
	SectionBanner,
	SectionAbout,
	SectionWhatWeDo,
	SectionWhatWeStand,
	SectionWhyBehind,
	SectionOurSpaces,
}

// DashboardUploadLimits caps the number of files accepted per section in one upload.
var DashboardUploadLimits = map[string]int{
	SectionBanner:      4,
	SectionAbout:       3,
	SectionWhatWeDo:    10,
	SectionWhatWeStand: 4,
	SectionWhyBehind:   3,
	SectionOurSpaces:   1,
}

type SocialMedia struct {
	Facebook  string `json:"facebook,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
	Linkedin  string `json:"linkedin,omitempty"`
	Youtube   string `json:"youtube,omitempty"`
}

// Merge overwrites fields that are set in other.
func (s SocialMedia) Merge(other SocialMedia) SocialMedia {
	if other.Facebook != "" {
		s.Facebook = other.Facebook
	}
	if other.Instagram != "" {
		s.Instagram = other.Instagram
	}
	if other.Twitter != "" {
		s.Twitter = other.Twitter
	}
	if other.Linkedin != "" {
		s.Linkedin = other.Linkedin
	}
	if other.Youtube != "" {
		s.Youtube = other.Youtube
	}
	return s
}

// Dashboard is the singleton landing-page content document.
type Dashboard struct {
	ID          int64       `json:"id"`
	Banner      []string    `json:"banner"`
	About       []string    `json:"about"`
	WhatWeDo    []string    `json:"whatWeDo"`
	WhatWeStand []string    `json:"whatWeStand"`
	WhyBehind   []string    `json:"whyBehind"`
	OurSpaces   []string    `json:"ourSpaces"`
	SocialMedia SocialMedia `json:"socialMedia"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Section returns the image list of a named section, or nil for unknown names.
func (d *Dashboard) Section(name string) []string {
	if p := d.sectionPtr(name); p != nil {
		return *p
	}
	return nil
}

// SetSection replaces a section's images. Returns false for unknown names.
func (d *Dashboard) SetSection(name string, images []string) bool {
	p := d.sectionPtr(name)
	if p == nil {
		return false
	}
	if images == nil {
		images = []string{}
	}
	*p = images
	return true
}

func (d *Dashboard) sectionPtr(name string) *[]string {
	switch name {
	case SectionBanner:
		return &d.Banner
	case SectionAbout:
		return &d.About
	case SectionWhatWeDo:
		return &d.WhatWeDo
	case SectionWhatWeStand:
		return &d.WhatWeStand
	case SectionWhyBehind:
		return &d.WhyBehind
	case SectionOurSpaces:
		return &d.OurSpaces
	default:
		return nil
	}
}
