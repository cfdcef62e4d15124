package fakeresourcerepo

import (
	"sync"

	"github.com/idpkit/idpkit/resources"
)

var _ resources.Repo = (*FakeResourceRepo)(nil)

type FakeResourceRepo struct {
	resources map[string]resources.Resource
	lock      sync.RWMutex
}

func NewFakeResourceRepo(rs ...resources.Resource) *FakeResourceRepo {
	repo := &FakeResourceRepo{resources: make(map[string]resources.Resource)}
	for _, r := range rs {
		repo.resources[r.Name] = r
	}
	return repo
}

func (r *FakeResourceRepo) Add(res resources.Resource) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.resources[res.Name] = res
}

func (r *FakeResourceRepo) GetResources(scopeNames []string) ([]resources.Resource, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]resources.Resource, 0, len(scopeNames))
	for _, name := range scopeNames {
		if res, ok := r.resources[name]; ok {
			out = append(out, res)
		}
	}
	return out, nil
}

func (r *FakeResourceRepo) All() ([]resources.Resource, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]resources.Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	return out, nil
}
