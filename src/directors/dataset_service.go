package directors

import (
	"os"
	"path/filepath"
	"sync"

	"odscore/src/buffermgr"
	"odscore/src/engine"
	"odscore/src/external"
	"odscore/src/helpers"
	"odscore/src/models"
	"odscore/src/query"
	"odscore/src/schema"
	"odscore/src/settings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DataSet is one open data set: a catalog, its instance store and the
// services reading it. Mutations take the write lock; queries and channel
// reads share the read lock.
type DataSet struct {
	ID   string
	Name string

	mu      sync.RWMutex
	catalog *schema.Catalog
	store   *engine.Store
	query   *query.Engine
	files   *buffermgr.FileRegistry
	codec   *external.Codec
	journal *engine.Journal
	logger  *zap.SugaredLogger
}

// NewDataSet opens an empty data set over catalog.
func NewDataSet(name string, catalog *schema.Catalog, args *settings.Arguments, logger *zap.SugaredLogger) (*DataSet, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if args == nil {
		args = settings.GetSettings()
	}
	if err := args.Validate(); err != nil {
		return nil, models.SchemaViolationf("invalid settings: %v", err)
	}

	ds := &DataSet{
		ID:      helpers.NewDataSetID(),
		Name:    name,
		catalog: catalog,
		store:   engine.NewStore(catalog, logger),
		files:   buffermgr.NewFileRegistry(args.MaxMappedFiles, logger),
		logger:  logger,
	}
	ds.query = query.NewEngine(ds.store, query.Options{MaxHops: args.MaxRelationHops, Logger: logger})
	ds.codec = external.NewCodec(ds.files, args.DataDir, logger)

	if args.JournalDir != "" {
		j, err := engine.NewJournal(filepath.Join(args.JournalDir, name+".journal"), args.JournalRetentionDays)
		if err != nil {
			return nil, models.WrapIOFailure(err, "open journal of %s", name)
		}
		if removed, err := j.CleanupOldJournals(); err != nil {
			logger.Warnf("Failed to clean up journals of %s: %v", name, err)
		} else if removed > 0 {
			logger.Infof("Removed %d expired journal files of %s", removed, name)
		}
		ds.journal = j
		ds.store.SetJournal(j)
	}

	logger.Infof("Opened data set %s (ID: %s)", name, ds.ID)
	return ds, nil
}

// OpenDataSet builds the catalog from an application model file against
// the configured base model and opens an empty data set over it.
func OpenDataSet(name, applicationModelPath string, args *settings.Arguments, logger *zap.SugaredLogger) (*DataSet, error) {
	if args == nil {
		args = settings.GetSettings()
	}
	if !helpers.FileExists(applicationModelPath, logger) {
		return nil, models.NotFoundf("application model %s does not exist", applicationModelPath)
	}
	app, err := schema.LoadApplicationModelFile(applicationModelPath)
	if err != nil {
		return nil, err
	}
	provider, err := schema.DefaultProvider()
	if err != nil {
		return nil, err
	}
	cat, err := schema.BuildFromProvider(provider, args.BaseModelVersion, app, schema.BuildOptions{
		ExtendedCompatibility: args.ExtendedCompatibility,
		Logger:                logger,
	})
	if err != nil {
		return nil, err
	}
	return NewDataSet(name, cat, args, logger)
}

// Catalog returns the schema of the data set.
func (ds *DataSet) Catalog() *schema.Catalog {
	return ds.catalog
}

func (ds *DataSet) CreateInstance(aid int64, values []models.NameValue) (int64, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.store.CreateInstance(aid, values)
}

func (ds *DataSet) SetAttributeValues(aid, iid int64, values []models.NameValue) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.store.SetAttributeValues(aid, iid, values)
}

func (ds *DataSet) GetAttributeValues(aid, iid int64, names ...string) ([]models.NameValue, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.store.GetAttributeValues(aid, iid, names...)
}

func (ds *DataSet) SetInstanceAttribute(aid, iid int64, name string, v models.Value) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.store.SetInstanceAttribute(aid, iid, name, v)
}

func (ds *DataSet) InstanceAttributes(aid, iid int64) ([]models.NameValue, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.store.InstanceAttributes(aid, iid)
}

func (ds *DataSet) RemoveInstance(aid, iid int64, cascade bool) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.store.RemoveInstance(aid, iid, cascade)
}

func (ds *DataSet) SetRelatedInstances(aid, iid int64, relationName string, targets []int64, mode engine.LinkMode) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.store.SetRelatedInstances(aid, iid, relationName, targets, mode)
}

func (ds *DataSet) GetRelatedInstanceIds(aid, iid int64, relationName string) ([]int64, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.store.GetRelatedInstanceIds(aid, iid, relationName)
}

func (ds *DataSet) AllInstances(aid int64) ([]int64, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.store.AllInstances(aid)
}

// CheckMinCardinality reports every instance below the lower bound of one
// of its relations. Run it after a bulk load.
func (ds *DataSet) CheckMinCardinality() error {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.store.CheckMinCardinality()
}

func (ds *DataSet) FindRelationPath(fromAid, toAid int64) ([]*models.Relation, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.query.FindRelationPath(fromAid, toAid)
}

func (ds *DataSet) CheckConditionOnRelatedInstances(rootAid, rootIid int64, cond query.Condition) (bool, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.query.CheckConditionOnRelatedInstances(rootAid, rootIid, cond)
}

// Join selects attributes of the given instances of both elements and joins
// them over the identified relation between them.
func (ds *DataSet) Join(aAid int64, aIids []int64, aAttrs []string, bAid int64, bIids []int64, bAttrs []string, relationName string) (*query.ResultSet, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	rel, err := ds.query.RelevantRelation(aAid, bAid, relationName)
	if err != nil {
		return nil, err
	}
	a, err := ds.query.Select(aAid, aIids, aAttrs)
	if err != nil {
		return nil, err
	}
	b, err := ds.query.Select(bAid, bIids, bAttrs)
	if err != nil {
		return nil, err
	}
	jr, err := ds.query.Join(a, b, rel)
	if err != nil {
		return nil, err
	}
	return jr.Merge()
}

func (ds *DataSet) Execute(q query.Query) (*query.ResultSet, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.query.Execute(q)
}

// ReadValues decodes values of the local column (aid, iid) from its
// external components. Each element carries its validity flag.
func (ds *DataSet) ReadValues(aid, iid, start, count int64) (models.Value, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	layout, err := external.ReadLayout(ds.store, aid, iid)
	if err != nil {
		return models.Value{}, err
	}
	return ds.codec.ReadChannel(layout, start, count)
}

// ReadFlags returns the validity flags of the local column (aid, iid).
func (ds *DataSet) ReadFlags(aid, iid, start, count int64) ([]models.Flag, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	layout, err := external.ReadLayout(ds.store, aid, iid)
	if err != nil {
		return nil, err
	}
	return ds.codec.ReadFlags(layout, start, count)
}

// SaveSnapshot writes the instance graph to path.
func (ds *DataSet) SaveSnapshot(path string) error {
	ds.mu.RLock()
	data, err := ds.store.ExportBSON()
	ds.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return models.WrapIOFailure(err, "write snapshot %s", path)
	}
	ds.logger.Infof("Saved snapshot of %s to %s (%d bytes)", ds.Name, path, len(data))
	return nil
}

// LoadSnapshot replaces the instance graph with the snapshot at path.
func (ds *DataSet) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.WrapIOFailure(err, "read snapshot %s", path)
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if err := ds.store.ImportBSON(data); err != nil {
		return err
	}
	ds.logger.Infof("Loaded snapshot of %s from %s", ds.Name, path)
	return nil
}

// Close unmaps external files and closes the journal.
func (ds *DataSet) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	err := ds.files.CloseAll()
	if ds.journal != nil {
		err = multierr.Append(err, ds.journal.Close())
		ds.store.SetJournal(nil)
		ds.journal = nil
	}
	ds.logger.Infof("Closed data set %s (ID: %s)", ds.Name, ds.ID)
	return err
}
