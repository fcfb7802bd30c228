package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"catsync/pkg/catalog"
	"catsync/pkg/types"
)

// fakeCatalog 是内存中的 catalog，记录每一次写操作
type fakeCatalog struct {
	mu sync.Mutex

	colls   map[types.LogicalPath]bool
	objects map[types.LogicalPath][]catalog.Replica

	writes  []string
	queries []string
	opened  []catalog.Identity
	closed  int

	// 按操作名注入错误，例如 "register"
	fail map[string]error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		colls:   map[types.LogicalPath]bool{types.Root: true},
		objects: map[types.LogicalPath][]catalog.Replica{},
		fail:    map[string]error{},
	}
}

func (f *fakeCatalog) Open(_ context.Context, id catalog.Identity) (catalog.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["open"]; err != nil {
		return nil, err
	}
	f.opened = append(f.opened, id)
	return &fakeSession{f: f, id: id}, nil
}

func (f *fakeCatalog) write(format string, args ...any) {
	f.writes = append(f.writes, fmt.Sprintf(format, args...))
}

func (f *fakeCatalog) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeCatalog) queried(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.queries {
		if q == op {
			return true
		}
	}
	return false
}

type fakeSession struct {
	f  *fakeCatalog
	id catalog.Identity
}

func (s *fakeSession) Identity() catalog.Identity { return s.id }

func (s *fakeSession) CollectionExists(_ context.Context, p types.LogicalPath) (bool, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.queries = append(s.f.queries, "coll_exists")
	return s.f.colls[p], s.f.fail["coll_exists"]
}

func (s *fakeSession) CreateCollection(_ context.Context, p types.LogicalPath) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.fail["mkcoll"]; err != nil {
		return err
	}
	if !s.f.colls[p.Dir()] {
		return catalog.ErrParentNotFound
	}
	s.f.write("mkcoll %s", p)
	s.f.colls[p] = true
	return nil
}

func (s *fakeSession) DataObjectExists(_ context.Context, p types.LogicalPath) (bool, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.queries = append(s.f.queries, "obj_exists")
	_, ok := s.f.objects[p]
	return ok, s.f.fail["obj_exists"]
}

func (s *fakeSession) Register(_ context.Context, physicalPath string, target types.LogicalPath, opts catalog.Options) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.fail["register"]; err != nil {
		return err
	}
	if !s.f.colls[target.Dir()] {
		return catalog.ErrParentNotFound
	}

	repl := catalog.Replica{ResourceName: types.ResourceName(opts.DestResource()), PhysicalPath: physicalPath}
	existing, ok := s.f.objects[target]
	switch {
	case opts.Has(catalog.OptRegisterReplica):
		if !ok {
			return catalog.ErrNotFound
		}
		repl.Number = len(existing)
		s.f.objects[target] = append(existing, repl)
	case ok:
		return catalog.ErrAlreadyExists
	default:
		s.f.objects[target] = []catalog.Replica{repl}
	}

	s.f.write("register %s -> %s %s", physicalPath, target, opts)
	return nil
}

func (s *fakeSession) Put(_ context.Context, physicalPath string, target types.LogicalPath, opts catalog.Options) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.fail["put"]; err != nil {
		return err
	}
	if !s.f.colls[target.Dir()] {
		return catalog.ErrParentNotFound
	}

	s.f.objects[target] = []catalog.Replica{{
		ResourceName: types.ResourceName(opts.DestResource()),
		PhysicalPath: "/vault" + target.String(),
	}}
	s.f.write("put %s -> %s %s", physicalPath, target, opts)
	return nil
}

func (s *fakeSession) Replicas(_ context.Context, target types.LogicalPath) ([]catalog.Replica, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.queries = append(s.f.queries, "replicas")
	repls, ok := s.f.objects[target]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return append([]catalog.Replica(nil), repls...), nil
}

func (s *fakeSession) ModifyMetadata(_ context.Context, sel catalog.ObjectSelector, upd catalog.MetadataUpdate, _ catalog.Options) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if err := s.f.fail["modmeta"]; err != nil {
		return err
	}

	var fields []string
	if upd.Size != nil {
		fields = append(fields, fmt.Sprintf("size=%d", *upd.Size))
	}
	if upd.ModifyTime != nil {
		fields = append(fields, fmt.Sprintf("mtime=%d", *upd.ModifyTime))
	}
	s.f.write("modmeta %s resc=%s hier=%s %s", sel.Path, sel.ResourceName, sel.ResourceHier, strings.Join(fields, ","))
	return nil
}

func (s *fakeSession) Close() error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.closed++
	return nil
}
