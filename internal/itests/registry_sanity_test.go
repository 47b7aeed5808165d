package itests

import (
	"testing"

	"GistAPI/internal/model"
)

// Мини-проверки самых сложных связей демо-схем.
func Test_Registry_Sanity_OnComplexRelations(t *testing.T) {
	reg := model.Registry()
	ou, err := reg.Describe("organisationUnit")
	if err != nil {
		t.Fatalf("organisationUnit missing: %v", err)
	}
	if p, ok := ou.Properties.Get("parent"); !ok || !p.IsReference() || p.Target() != ou {
		t.Fatalf("organisationUnit.parent must reference organisationUnit, got: %#v", p)
	}
	if p, ok := ou.Properties.Get("dataSets"); !ok || !p.IsCollection() || p.Through != "datasetsource" {
		t.Fatalf("organisationUnit.dataSets must go through datasetsource, got: %#v", p)
	}
	user, err := reg.Describe("user")
	if err != nil {
		t.Fatalf("user missing: %v", err)
	}
	if p, ok := user.Properties.Get("userCredentials"); !ok || p.Target().Plural != "" {
		t.Fatalf("user.userCredentials must target an embedded schema, got: %#v", p)
	}
	if _, ok := reg.ByPlural("userCredentials"); ok {
		t.Fatalf("userCredentials must not be exposed as a resource")
	}
}
