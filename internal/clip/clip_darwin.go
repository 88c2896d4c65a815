//go:build darwin

package clip

// #cgo CFLAGS: -x objective-c
// #cgo LDFLAGS: -framework Cocoa
// #import <Cocoa/Cocoa.h>
// #include <stdlib.h>
//
// NSInteger clipstash_changeCount() {
//     return [[NSPasteboard generalPasteboard] changeCount];
// }
//
// // The pasteboard has no owner; the frontmost app is the best proxy for
// // the application that just copied.
// char* clipstash_frontmostPath() {
//     @autoreleasepool {
//         NSRunningApplication* app = [[NSWorkspace sharedWorkspace] frontmostApplication];
//         NSString* path = [[app executableURL] path];
//         if (path == nil) { return NULL; }
//         return strdup([path UTF8String]);
//     }
// }
//
// // Returns the file URLs on the pasteboard as a newline-separated list.
// char* clipstash_fileURLs() {
//     @autoreleasepool {
//         NSPasteboard* pb = [NSPasteboard generalPasteboard];
//         NSArray* urls = [pb readObjectsForClasses:@[[NSURL class]]
//                                           options:@{NSPasteboardURLReadingFileURLsOnlyKey: @YES}];
//         if (urls == nil || [urls count] == 0) { return NULL; }
//         NSMutableArray* paths = [NSMutableArray arrayWithCapacity:[urls count]];
//         for (NSURL* u in urls) { [paths addObject:[u path]]; }
//         return strdup([[paths componentsJoinedByString:@"\n"] UTF8String]);
//     }
// }
//
// // Copies the named pasteboard type into a malloc'd buffer.
// void* clipstash_data(const char* type, int* n) {
//     @autoreleasepool {
//         NSData* d = [[NSPasteboard generalPasteboard] dataForType:[NSString stringWithUTF8String:type]];
//         *n = 0;
//         if (d == nil || [d length] == 0) { return NULL; }
//         void* buf = malloc([d length]);
//         memcpy(buf, [d bytes], [d length]);
//         *n = (int)[d length];
//         return buf;
//     }
// }
import "C"

import (
	"log/slog"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.design/x/clipboard"

	"go.klb.dev/clipstash/internal/item"
)

type darwinBackend struct{}

// New returns the macOS clipboard backend.
// clipboard.Init is called here rather than in init() so that CLI sub-commands
// (list, status, ...) that never construct a backend don't log spurious
// warnings.
func New() Clipboard {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard init failed", "err", err)
		return NewMemory("headless (memory)")
	}
	return &darwinBackend{}
}

func (b *darwinBackend) Name() string { return "macOS NSPasteboard" }

func (b *darwinBackend) Sequence() (uint64, error) {
	return uint64(C.clipstash_changeCount()), nil
}

// Open returns a session; NSPasteboard reads are atomic per call and there
// is no exclusive lock to take.
func (b *darwinBackend) Open() (Session, error) {
	return &darwinSession{designSession{owner: frontmost()}}, nil
}

func (b *darwinBackend) Write(it item.Item) error { return designWrite(it) }

func (b *darwinBackend) Close() {}

type darwinSession struct {
	designSession
}

func (s *darwinSession) Files() ([]string, error) {
	cs := C.clipstash_fileURLs()
	if cs == nil {
		return nil, nil
	}
	defer C.free(unsafe.Pointer(cs))
	return strings.Split(C.GoString(cs), "\n"), nil
}

func (s *darwinSession) RTF() ([]byte, error)  { return pasteboardData("public.rtf"), nil }
func (s *darwinSession) HTML() ([]byte, error) { return pasteboardData("public.html"), nil }

func pasteboardData(uti string) []byte {
	ct := C.CString(uti)
	defer C.free(unsafe.Pointer(ct))
	var n C.int
	p := C.clipstash_data(ct, &n)
	if p == nil {
		return nil
	}
	defer C.free(p)
	return C.GoBytes(p, n)
}

func frontmost() item.Source {
	cs := C.clipstash_frontmostPath()
	if cs == nil {
		return item.Source{}
	}
	defer C.free(unsafe.Pointer(cs))
	path := C.GoString(cs)
	return item.Source{App: filepath.Base(path), Path: path}
}
