package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/stores"
)

func ExampleSQLiteStore_ListInstallations() {
	store, err := stores.NewSQLiteStore(stores.Config{Path: stores.MemoryPath})
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	now := time.Now()
	for i, loc := range []string{"mvn:org.example/api/1.0", "mvn:org.example/impl/1.0"} {
		_ = store.CreateInstallation(ctx, &stores.Installation{
			ID:           fmt.Sprintf("inst-%d", i),
			Location:     loc,
			State:        engine.StateInstalled,
			InstalledAt:  now.Add(time.Duration(i) * time.Second),
			LastModified: now,
		})
	}

	installations, _ := store.ListInstallations(ctx, nil, 0, 0)
	for _, inst := range installations {
		fmt.Println(inst.Location, inst.State)
	}
	// Output:
	// mvn:org.example/api/1.0 installed
	// mvn:org.example/impl/1.0 installed
}
