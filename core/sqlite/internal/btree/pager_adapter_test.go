package btree

import (
	"bytes"
	"testing"

	"github.com/revred/sharc/pagesource"
)

func TestPageSourceProviderGetAndAllocate(t *testing.T) {
	const pageSize = 512
	base := pagesource.NewMemoryPageSource(make([]byte, pageSize*2), pageSize)
	shadow := pagesource.NewShadowPageSource(base)
	provider := NewPageSourceProvider(shadow)

	got, err := provider.GetPageData(1)
	if err != nil {
		t.Fatalf("GetPageData(1) error = %v", err)
	}
	if len(got) != pageSize {
		t.Fatalf("len(GetPageData(1)) = %d, want %d", len(got), pageSize)
	}

	pgno, data, err := provider.AllocatePageData()
	if err != nil {
		t.Fatalf("AllocatePageData() error = %v", err)
	}
	if pgno != 3 {
		t.Fatalf("AllocatePageData() pgno = %d, want 3", pgno)
	}
	if len(data) != pageSize {
		t.Fatalf("len(data) = %d, want %d", len(data), pageSize)
	}

	dirty := provider.DirtyPages()
	if len(dirty) != 1 || dirty[0] != 3 {
		t.Fatalf("DirtyPages() = %v, want [3]", dirty)
	}
}

func TestPageSourceProviderMarkDirtyAndFlush(t *testing.T) {
	const pageSize = 512
	base := pagesource.NewMemoryPageSource(make([]byte, pageSize*2), pageSize)
	shadow := pagesource.NewShadowPageSource(base)
	provider := NewPageSourceProvider(shadow)

	modified := bytes.Repeat([]byte{0xAB}, pageSize)
	if err := provider.MarkDirty(2); err != nil {
		t.Fatalf("MarkDirty() error = %v", err)
	}

	if err := provider.Flush(map[uint32][]byte{2: modified}); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	got, err := shadow.GetPage(2)
	if err != nil {
		t.Fatalf("GetPage(2) error = %v", err)
	}
	if !bytes.Equal(got, modified) {
		t.Fatal("flushed page content does not match what was written")
	}
	if len(provider.DirtyPages()) != 0 {
		t.Fatal("DirtyPages() should be empty after Flush")
	}
}
