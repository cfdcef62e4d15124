package resources

// Repo is the external resource store. GetResources returns the registered
// resources for the given scope names; unknown names are simply absent from
// the result.
type Repo interface {
	GetResources(scopeNames []string) ([]Resource, error)
	All() ([]Resource, error)
}
