package resource

import (
	"fmt"
	"math/rand"
	"testing"
)

func res(typ, url string) Resource {
	return Resource{Type: typ, URL: url}
}

func sd(url, structureType string) Resource {
	return Resource{Type: TypeStructureDefinition, URL: url, StructureType: structureType}
}

func TestRank(t *testing.T) {
	tests := []struct {
		r    Resource
		want int
	}{
		{res(TypeCodeSystem, ""), 1},
		{res(TypeValueSet, ""), 2},
		{res(TypeConceptMap, ""), 3},
		{sd("", "Extension"), 4},
		{sd("", "Patient"), 5},
		{sd("", ""), 5},
		{res(TypeSearchParameter, ""), 6},
		{res(TypeCompartmentDefinition, ""), 6},
		{res(TypeOperationDefinition, ""), 6},
		{res("Patient", ""), 10},
		{res("", ""), 10},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.r.Type, tt.r.StructureType), func(t *testing.T) {
			if got := Rank(tt.r); got != tt.want {
				t.Errorf("Rank() = %d; want %d", got, tt.want)
			}
		})
	}
}

func TestSort_Scenario(t *testing.T) {
	in := []Resource{res(TypeValueSet, "a"), res(TypeCodeSystem, "b")}
	out := Sort(in)

	if len(out) != 2 || out[0].URL != "b" || out[1].URL != "a" {
		t.Errorf("Sort() = %v; want [CodeSystem b, ValueSet a]", out)
	}
	if in[0].URL != "a" {
		t.Error("Sort() must not reorder its input")
	}
}

func TestSort_Empty(t *testing.T) {
	if out := Sort(nil); len(out) != 0 {
		t.Errorf("Sort(nil) = %v; want empty", out)
	}
}

func TestSort_Order(t *testing.T) {
	in := mixedBatch()
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 20; round++ {
		rng.Shuffle(len(in), func(i, j int) { in[i], in[j] = in[j], in[i] })
		out := Sort(in)

		for i := 1; i < len(out); i++ {
			if Rank(out[i-1]) > Rank(out[i]) {
				t.Fatalf("round %d: %v (rank %d) before %v (rank %d)",
					round, out[i-1], Rank(out[i-1]), out[i], Rank(out[i]))
			}
		}
	}
}

func TestSort_Stable(t *testing.T) {
	in := []Resource{
		res(TypeSearchParameter, "sp-1"),
		res(TypeValueSet, "vs-1"),
		res(TypeOperationDefinition, "op-1"),
		sd("sd-1", "Patient"),
		res(TypeValueSet, "vs-2"),
		res(TypeCompartmentDefinition, "cd-1"),
		sd("sd-2", "Observation"),
		res(TypeValueSet, "vs-3"),
		res(TypeSearchParameter, "sp-2"),
	}

	out := Sort(in)
	want := []string{"vs-1", "vs-2", "vs-3", "sd-1", "sd-2", "sp-1", "op-1", "cd-1", "sp-2"}
	if len(out) != len(want) {
		t.Fatalf("len = %d; want %d", len(out), len(want))
	}
	for i, url := range want {
		if out[i].URL != url {
			t.Errorf("out[%d] = %q; want %q", i, out[i].URL, url)
		}
	}
}

func TestSort_Permutation(t *testing.T) {
	in := mixedBatch()
	out := Sort(in)

	if len(out) != len(in) {
		t.Fatalf("len = %d; want %d", len(out), len(in))
	}

	counts := make(map[string]int)
	for _, r := range in {
		counts[r.URL]++
	}
	for _, r := range out {
		counts[r.URL]--
	}
	for url, n := range counts {
		if n != 0 {
			t.Errorf("resource %q count delta = %d", url, n)
		}
	}
}

func TestFilter(t *testing.T) {
	in := []Resource{
		res(TypeCodeSystem, "cs"),
		res("Patient", "p"),
		res("ImplementationGuide", "ig"),
		res(TypeOperationDefinition, "op"),
	}
	out := Filter(in)
	if len(out) != 2 || out[0].URL != "cs" || out[1].URL != "op" {
		t.Errorf("Filter() = %v", out)
	}
}

func mixedBatch() []Resource {
	var batch []Resource
	for i := 0; i < 3; i++ {
		batch = append(batch,
			res(TypeCodeSystem, fmt.Sprintf("cs-%d", i)),
			res(TypeValueSet, fmt.Sprintf("vs-%d", i)),
			res(TypeConceptMap, fmt.Sprintf("cm-%d", i)),
			sd(fmt.Sprintf("ext-%d", i), StructureTypeExtension),
			sd(fmt.Sprintf("prof-%d", i), "Patient"),
			res(TypeSearchParameter, fmt.Sprintf("sp-%d", i)),
			res(TypeCompartmentDefinition, fmt.Sprintf("cd-%d", i)),
			res(TypeOperationDefinition, fmt.Sprintf("op-%d", i)),
		)
	}
	return batch
}
