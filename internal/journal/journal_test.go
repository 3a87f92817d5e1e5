package journal

import (
	"context"
	"testing"
)

func TestOpenSelectsDriverFromEnv(t *testing.T) {
	ctx := context.Background()

	t.Setenv("TRACKCORE_JOURNAL_DRIVER", "memory")
	sink, err := Open(ctx)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if sink.Driver() != DriverMemory {
		t.Fatalf("driver = %s", sink.Driver())
	}

	t.Setenv("TRACKCORE_JOURNAL_DRIVER", "fs")
	t.Setenv("TRACKCORE_JOURNAL_FS_ROOT", t.TempDir())
	sink, err = Open(ctx)
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if sink.Driver() != DriverFilesystem {
		t.Fatalf("driver = %s", sink.Driver())
	}
}

func TestOpenDefaultsToFilesystem(t *testing.T) {
	t.Setenv("TRACKCORE_JOURNAL_DRIVER", "")
	t.Setenv("TRACKCORE_JOURNAL_FS_ROOT", t.TempDir())
	sink, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if sink.Driver() != DriverFilesystem {
		t.Fatalf("driver = %s", sink.Driver())
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Setenv("TRACKCORE_JOURNAL_DRIVER", "carrier-pigeon")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}

func TestOpenS3RequiresBucket(t *testing.T) {
	t.Setenv("TRACKCORE_JOURNAL_DRIVER", "s3")
	t.Setenv("TRACKCORE_JOURNAL_S3_BUCKET", "")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected missing bucket to fail")
	}
}
