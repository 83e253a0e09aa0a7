package directors

import (
	"sort"
	"strings"
	"sync"

	"odscore/src/helpers"
	"odscore/src/models"
	"odscore/src/schema"
	"odscore/src/settings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ServiceManager keeps the open data sets of the process.
type ServiceManager struct {
	mu       sync.RWMutex
	dataSets map[string]*DataSet
	settings *settings.Arguments
	logger   *zap.SugaredLogger
}

// Private instance and mutex for thread safety
var (
	instance *ServiceManager
	once     sync.Once
	mu       sync.RWMutex
)

// GetServiceManager returns the singleton instance of ServiceManager,
// initializing it on the default settings when nobody did yet.
func GetServiceManager() *ServiceManager {
	mu.RLock()
	sm := instance
	mu.RUnlock()

	if sm == nil {
		return InitServiceManager(settings.GetSettings(), nil)
	}
	return sm
}

// InitServiceManager initializes the ServiceManager singleton. Only the
// first call, including an implicit one from GetServiceManager, takes effect.
func InitServiceManager(args *settings.Arguments, logger *zap.SugaredLogger) *ServiceManager {
	// Use sync.Once to ensure this only happens one time
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()

		instance = NewServiceManager(args, logger)
		instance.logger.Info("ServiceManager singleton initialized")
	})

	return instance
}

// ResetServiceManager is useful for testing - it resets the singleton
func ResetServiceManager() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewServiceManager creates a manager without registering it as singleton.
func NewServiceManager(args *settings.Arguments, logger *zap.SugaredLogger) *ServiceManager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if args == nil {
		args = settings.GetSettings()
	}
	return &ServiceManager{
		dataSets: make(map[string]*DataSet),
		settings: args,
		logger:   logger,
	}
}

// Open opens a new data set over catalog. Names are unique, ignoring case.
func (sm *ServiceManager) Open(name string, catalog *schema.Catalog) (*DataSet, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, err := sm.byName(name); err == nil {
		return nil, models.ConstraintViolationf("data set '%s' already exists", name)
	}
	ds, err := NewDataSet(name, catalog, sm.settings, sm.logger)
	if err != nil {
		return nil, err
	}
	sm.dataSets[ds.ID] = ds
	return ds, nil
}

// GetDataSetByID retrieves a data set by its ID
func (sm *ServiceManager) GetDataSetByID(id string) (*DataSet, error) {
	if !helpers.IsDataSetID(id) {
		return nil, models.NotFoundf("malformed data set ID %q", id)
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if ds, exists := sm.dataSets[id]; exists {
		return ds, nil
	}
	return nil, models.NotFoundf("data set with ID %s not found", id)
}

// GetDataSetByName retrieves a data set by name (case insensitive)
func (sm *ServiceManager) GetDataSetByName(name string) (*DataSet, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.byName(name)
}

func (sm *ServiceManager) byName(name string) (*DataSet, error) {
	for _, ds := range sm.dataSets {
		if strings.EqualFold(ds.Name, name) {
			return ds, nil
		}
	}
	return nil, models.NotFoundf("data set '%s' not found", name)
}

// ListDataSets returns all open data sets ordered by name
func (sm *ServiceManager) ListDataSets() []*DataSet {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*DataSet, 0, len(sm.dataSets))
	for _, ds := range sm.dataSets {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close closes and forgets the data set with the given ID.
func (sm *ServiceManager) Close(id string) error {
	sm.mu.Lock()
	ds, ok := sm.dataSets[id]
	delete(sm.dataSets, id)
	sm.mu.Unlock()

	if !ok {
		return models.NotFoundf("data set with ID %s not found", id)
	}
	return ds.Close()
}

// CloseAll closes every open data set.
func (sm *ServiceManager) CloseAll() error {
	sm.mu.Lock()
	open := sm.dataSets
	sm.dataSets = make(map[string]*DataSet)
	sm.mu.Unlock()

	var err error
	for _, ds := range open {
		err = multierr.Append(err, ds.Close())
	}
	return err
}
