package usecase

import (
	"errors"
	"testing"

	"shopchat/internal/domain"
)

func TestBuildGraphValid(t *testing.T) {
	g := paintShopGraph(t)

	if g.Orchestrator() != "triage" {
		t.Errorf("Orchestrator = %q, want triage", g.Orchestrator())
	}
	if _, ok := g.Specialist("product"); !ok {
		t.Error("Specialist(product) not found")
	}
	if !g.Allows("triage", "product") {
		t.Error("triage -> product should be allowed")
	}
	if g.Allows("product", "order") {
		t.Error("product -> order should not be allowed")
	}
	label, ok := g.LabelFor("triage", "order")
	if !ok || label != "order status and delivery" {
		t.Errorf("LabelFor(triage, order) = %q, %v", label, ok)
	}
}

func TestBuildGraphTargetsOrdered(t *testing.T) {
	g := paintShopGraph(t)
	targets := g.TargetsFor("triage")
	want := []string{"product", "order"}
	if len(targets) != len(want) {
		t.Fatalf("TargetsFor(triage) = %v, want %v", targets, want)
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Errorf("targets[%d] = %q, want %q", i, targets[i], want[i])
		}
	}
}

func TestBuildGraphRejectsDuplicateName(t *testing.T) {
	specs := append(paintShopSpecialists(), domain.Specialist{Name: "product"})
	_, err := BuildGraph(specs, paintShopEdges())
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestBuildGraphRejectsNoOrchestrator(t *testing.T) {
	specs := paintShopSpecialists()
	specs[0].Orchestrator = false
	_, err := BuildGraph(specs, paintShopEdges())
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestBuildGraphRejectsTwoOrchestrators(t *testing.T) {
	specs := paintShopSpecialists()
	specs[1].Orchestrator = true
	_, err := BuildGraph(specs, paintShopEdges())
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestBuildGraphRejectsUnknownEdgeEndpoint(t *testing.T) {
	edges := append(paintShopEdges(), domain.HandoffEdge{Source: "triage", Target: "billing"})
	_, err := BuildGraph(paintShopSpecialists(), edges)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestBuildGraphRejectsDuplicateEdge(t *testing.T) {
	edges := append(paintShopEdges(), domain.HandoffEdge{Source: "triage", Target: "product", Label: "again"})
	_, err := BuildGraph(paintShopSpecialists(), edges)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestBuildGraphRejectsMissingReturnEdge(t *testing.T) {
	edges := []domain.HandoffEdge{
		{Source: "triage", Target: "product", Label: "products"},
		{Source: "triage", Target: "order", Label: "orders"},
		{Source: "product", Target: "triage", Label: "back"},
		// order has no way back to triage
	}
	_, err := BuildGraph(paintShopSpecialists(), edges)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestBuildGraphRejectsEmpty(t *testing.T) {
	_, err := BuildGraph(nil, nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}
