package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	POSTWithHeaders(path string, body interface{}, headers map[string]string) error
	GET(path string, headers map[string]string) error
	StatusCode() int
	Body() []byte
	GetResponseField(field string) (interface{}, error)
	GetAdminToken() string
	Save(key, value string)
	Saved(key string) (string, bool)
}

// RegisterSteps registers profile lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &profileSteps{tc: tc}

	ctx.Step(`^I submit a profile with assets "([^"]*)", family "([^"]*)" and jurisdiction "([^"]*)"$`, steps.submitProfile)
	ctx.Step(`^I request analysis of my profile$`, steps.requestAnalysis)
	ctx.Step(`^I read the shadow of my profile$`, steps.readShadow)
	ctx.Step(`^my profile is eventually analyzed$`, steps.eventuallyAnalyzed)
	ctx.Step(`^I request recommendations from "([^"]*)"$`, steps.requestRecommendations)
	ctx.Step(`^I request stats for jurisdiction "([^"]*)"$`, steps.requestStats)
	ctx.Step(`^an event "([^"]*)" is eventually recorded$`, steps.eventuallyRecorded)
}

type profileSteps struct {
	tc TestContext
}

const (
	pollInterval = 100 * time.Millisecond
	pollTimeout  = 10 * time.Second
)

func (s *profileSteps) encrypt(text string) (string, error) {
	err := s.tc.POSTWithHeaders("/dev/encrypt", map[string]string{"text": text},
		map[string]string{"X-Admin-Token": s.tc.GetAdminToken()})
	if err != nil {
		return "", err
	}
	if s.tc.StatusCode() != 201 {
		return "", fmt.Errorf("encrypt %q: status %d: %s", text, s.tc.StatusCode(), s.tc.Body())
	}
	handle, err := s.tc.GetResponseField("handle")
	if err != nil {
		return "", err
	}
	return fmt.Sprint(handle), nil
}

func (s *profileSteps) submitProfile(ctx context.Context, assets, family, jurisdiction string) error {
	body := map[string]string{}
	for field, text := range map[string]string{
		"assets":           assets,
		"family_structure": family,
		"tax_jurisdiction": jurisdiction,
	} {
		handle, err := s.encrypt(text)
		if err != nil {
			return err
		}
		body[field] = handle
	}
	if err := s.tc.POST("/profiles", body); err != nil {
		return err
	}
	if s.tc.StatusCode() != 201 {
		return fmt.Errorf("create profile: status %d: %s", s.tc.StatusCode(), s.tc.Body())
	}
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Save("profile_id", fmt.Sprint(id))
	return nil
}

func (s *profileSteps) profilePath(suffix string) (string, error) {
	id, ok := s.tc.Saved("profile_id")
	if !ok {
		return "", fmt.Errorf("no profile submitted in this scenario")
	}
	return "/profiles/" + id + suffix, nil
}

func (s *profileSteps) requestAnalysis(ctx context.Context) error {
	path, err := s.profilePath("/analysis")
	if err != nil {
		return err
	}
	return s.tc.POST(path, nil)
}

func (s *profileSteps) readShadow(ctx context.Context) error {
	path, err := s.profilePath("/shadow")
	if err != nil {
		return err
	}
	return s.tc.GET(path, nil)
}

func (s *profileSteps) eventuallyAnalyzed(ctx context.Context) error {
	deadline := time.Now().Add(pollTimeout)
	for time.Now().Before(deadline) {
		if err := s.readShadow(ctx); err != nil {
			return err
		}
		if status, err := s.tc.GetResponseField("status"); err == nil && status == "analyzed" {
			return nil
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("profile not analyzed within %s: %s", pollTimeout, s.tc.Body())
}

func (s *profileSteps) requestRecommendations(ctx context.Context, ids string) error {
	path, err := s.profilePath("/recommendations")
	if err != nil {
		return err
	}
	var options []map[string]string
	for _, id := range strings.Split(ids, ",") {
		options = append(options, map[string]string{"id": id, "name": id})
	}
	return s.tc.POST(path, map[string]interface{}{"options": options})
}

func (s *profileSteps) requestStats(ctx context.Context, name string) error {
	return s.tc.POST("/jurisdictions/"+name+"/stats", nil)
}

func (s *profileSteps) eventuallyRecorded(ctx context.Context, eventType string) error {
	deadline := time.Now().Add(pollTimeout)
	for time.Now().Before(deadline) {
		if err := s.tc.GET("/events?type="+eventType+"&limit=1", nil); err != nil {
			return err
		}
		if events, err := s.tc.GetResponseField("events"); err == nil {
			if list, ok := events.([]interface{}); ok && len(list) > 0 {
				return nil
			}
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("no %s event within %s", eventType, pollTimeout)
}

