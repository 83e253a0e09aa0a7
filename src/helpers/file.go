package helpers

import (
	"fmt"
	"os"
	"path/filepath"

	"odscore/src/settings"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// ResolveDataPath joins a relative file reference to the data directory.
// Absolute paths are returned unchanged.
func ResolveDataPath(dataDirectory, fileName string) string {
	if filepath.IsAbs(fileName) || dataDirectory == "" {
		return filepath.Clean(fileName)
	}
	return filepath.Join(dataDirectory, fileName)
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string, logger *zap.SugaredLogger) bool {
	args := settings.GetSettings()

	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			if args.Debug && args.Verbose && logger != nil {
				logger.Infof("File does not exist: %s", filename)
			}
			return false
		}

		if logger != nil {
			logger.Infof("Error checking file %s for existence: %s", filename, err)
		}
		return false
	}

	return !info.IsDir()
}

// EncodeBSON marshals a document into BSON
func EncodeBSON(doc interface{}) ([]byte, error) {
	bsonData, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("error encoding BSON: %w", err)
	}
	return bsonData, nil
}

// DecodeBSON unmarshals BSON into out
func DecodeBSON(bsonData []byte, out interface{}) error {
	if err := bson.Unmarshal(bsonData, out); err != nil {
		return fmt.Errorf("error decoding BSON: %w", err)
	}
	return nil
}
