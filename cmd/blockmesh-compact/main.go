package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/cuemby/blockmesh/pkg/block"
	"github.com/cuemby/blockmesh/pkg/fsrepo"
	"github.com/cuemby/blockmesh/pkg/metrics"
)

var (
	dataDir   = flag.String("data-dir", "/var/lib/blockmesh", "blockmesh data directory")
	keepAfter = flag.Uint64("keep-after", 0, "revision horizon; every revision record at or below this is compacted away, per block")
	dryRun    = flag.Bool("dry-run", false, "show what would be compacted without making changes")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("blockmesh revision compaction tool")
	log.Println("===================================")

	dbPath := filepath.Join(*dataDir, "blockmesh.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("store not found at %s", dbPath)
	}

	log.Printf("Store: %s", dbPath)
	log.Printf("Keep after revision: %d", *keepAfter)
	log.Printf("Dry run: %v", *dryRun)

	store, err := fsrepo.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if err := compact(store, block.Revision(*keepAfter), *dryRun); err != nil {
		log.Fatalf("compaction failed: %v", err)
	}

	if *dryRun {
		log.Println("\nDry run completed. No changes made.")
		log.Println("Run without --dry-run to perform the compaction.")
	} else {
		log.Println("\n✓ Compaction completed successfully!")
	}
}

func compact(store *fsrepo.Store, keepAfter block.Revision, dryRun bool) error {
	ids, err := store.BlockIds()
	if err != nil {
		return err
	}

	log.Printf("Found %d blocks", len(ids))
	if len(ids) == 0 {
		log.Println("✓ No blocks to compact")
		return nil
	}

	var totalRemoved int
	for _, id := range ids {
		if dryRun {
			log.Printf("[DRY RUN] would compact revisions <= %d for block %s", keepAfter, id)
			continue
		}

		timer := metrics.NewTimer()
		removed, err := store.CompactRevisionsBefore(id, keepAfter)
		timer.ObserveDuration(metrics.CompactionDuration)
		if err != nil {
			return err
		}
		if removed > 0 {
			log.Printf("  compacted %d revision(s) for block %s", removed, id)
		}
		totalRemoved += removed
	}

	if !dryRun {
		log.Printf("✓ Removed %d stale revision record(s) across %d block(s)", totalRemoved, len(ids))
	}

	return nil
}
