package onnxvits

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var envMu sync.Mutex

func onnxRuntimeLibPath() string {
	if envPath := os.Getenv("ONNXRUNTIME_LIB_PATH"); envPath != "" {
		return envPath
	}

	var candidates []string
	var fallback string
	switch runtime.GOOS {
	case "windows":
		candidates = []string{"onnxruntime.dll", "./onnxruntime.dll", "./lib/onnxruntime.dll"}
		fallback = "onnxruntime.dll"
	case "darwin":
		candidates = []string{
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
			"./libonnxruntime.dylib",
		}
		fallback = "libonnxruntime.dylib"
	default:
		candidates = []string{
			"/usr/lib/libonnxruntime.so",
			"/usr/local/lib/libonnxruntime.so",
			"./libonnxruntime.so",
			"./lib/libonnxruntime.so",
		}
		fallback = "libonnxruntime.so"
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return fallback
}

// ensureEnvironment initialises the process-wide ONNX runtime once. The
// environment outlives individual sessions so models can be swapped.
func ensureEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	ort.SetSharedLibraryPath(onnxRuntimeLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	return nil
}

// Shutdown releases the ONNX runtime. Call it at process exit after every
// engine has been closed.
func Shutdown() error {
	envMu.Lock()
	defer envMu.Unlock()
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}
