package memstore_test

import (
	"testing"

	"github.com/evcomx/ragcore/internal/storage/memstore"
	"github.com/evcomx/ragcore/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(*testing.T) storagetest.Backend { return memstore.New() })
}
