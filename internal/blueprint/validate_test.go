package blueprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mailtwo/nexus-link-sub005/internal/blueprint"
)

func validCatalog() blueprint.Catalog {
	return blueprint.Catalog{
		ServerSpecs: []blueprint.ServerSpec{
			{SpecID: "ws-base", Role: "workstation"},
		},
		Scenarios: []blueprint.Scenario{
			{ScenarioID: "intro", Handlers: []blueprint.EventHandlerSpec{
				{EventID: "e1", ConditionType: "fileAcquired", FileNameKey: "secret.txt",
					Actions: []blueprint.ActionSpec{{Type: "print", Text: "got it"}}},
			}},
		},
		Campaigns: []blueprint.Campaign{
			{
				Spawns:    []blueprint.ServerSpawn{{NodeID: "n1", SpecRef: "ws-base"}},
				Scenarios: []string{"intro"},
			},
		},
	}
}

func TestValidateAcceptsWellFormedCatalog(t *testing.T) {
	errs := blueprint.Validate(validCatalog())
	assert.Empty(t, errs)
}

func TestValidateCatchesMissingSpecReference(t *testing.T) {
	cat := validCatalog()
	cat.Campaigns[0].Spawns[0].SpecRef = "nonexistent"
	errs := blueprint.Validate(cat)
	assert.NotEmpty(t, errs)
	assert.Contains(t, errs.Error(), "missing spec reference")
}

func TestValidateCatchesDuplicateNodeID(t *testing.T) {
	cat := validCatalog()
	cat.Campaigns[0].Spawns = append(cat.Campaigns[0].Spawns, blueprint.ServerSpawn{NodeID: "n1", SpecRef: "ws-base"})
	errs := blueprint.Validate(cat)
	assert.Contains(t, errs.Error(), "duplicate nodeId")
}

func TestValidateCatchesUnknownEnum(t *testing.T) {
	cat := validCatalog()
	cat.ServerSpecs[0].Role = "bogus"
	errs := blueprint.Validate(cat)
	assert.Contains(t, errs.Error(), "unknown role")
}

func TestValidateAggregatesMultipleErrors(t *testing.T) {
	cat := validCatalog()
	cat.ServerSpecs[0].Role = "bogus"
	cat.Campaigns[0].Spawns[0].SpecRef = "nonexistent"
	errs := blueprint.Validate(cat)
	assert.GreaterOrEqual(t, len(errs), 2)
}

func TestValidateCatchesMalformedConditionArgs(t *testing.T) {
	cat := validCatalog()
	cat.Scenarios[0].Handlers[0].FileNameKey = ""
	errs := blueprint.Validate(cat)
	assert.Contains(t, errs.Error(), "malformed conditionArgs")
}
