package lsp_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lsp-mcp/internal/lsp"
	"lsp-mcp/internal/lsp/lsptest"
)

func TestMain(m *testing.M) {
	lsptest.MaybeServe()
	os.Exit(m.Run())
}

const sampleSource = `class Greeter:
    def greet(self):
        return "hi"
`

// newWorkspace creates a temporary root with one source file
func newWorkspace(t *testing.T) (root, file string) {
	t.Helper()
	root = t.TempDir()
	file = filepath.Join(root, "src", "a.py")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte(sampleSource), 0o644))
	return root, file
}

func openSession(t *testing.T, root string, env map[string]string) *lsp.Session {
	t.Helper()
	s, err := lsp.Open(context.Background(), lsp.Options{
		Language:       "python",
		RootDir:        root,
		Server:         lsptest.Config(t, env),
		StartupTimeout: 10 * time.Second,
		RequestTimeout: 10 * time.Second,
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionQueries(t *testing.T) {
	root, file := newWorkspace(t)
	s := openSession(t, root, nil)
	ctx := context.Background()

	assert.True(t, s.IsOpen())
	assert.Equal(t, "python", s.Language())
	assert.NotEmpty(t, s.ID())

	absRoot, err := filepath.Abs(root)
	require.NoError(t, err)
	assert.Equal(t, absRoot, s.Root())

	t.Run("document symbols", func(t *testing.T) {
		symbols, err := s.DocumentSymbols(ctx, file)
		require.NoError(t, err)
		require.Len(t, symbols, 1)
		assert.Equal(t, "Greeter", symbols[0].Name)
		assert.Equal(t, lsp.SymbolKindClass, symbols[0].Kind)
		require.Len(t, symbols[0].Children, 1)
		assert.Equal(t, "greet", symbols[0].Children[0].Name)
	})

	t.Run("definition", func(t *testing.T) {
		locs, err := s.Definition(ctx, file, lsp.Position{Line: 1, Character: 8})
		require.NoError(t, err)
		require.Len(t, locs, 1)
		assert.Contains(t, locs[0].URI, "src/a.py")
		assert.Equal(t, lsp.Position{Line: 1, Character: 8}, locs[0].Range.Start)
	})

	t.Run("definition null", func(t *testing.T) {
		locs, err := s.Definition(ctx, file, lsp.Position{Line: lsptest.NullLine})
		require.NoError(t, err)
		assert.NotNil(t, locs)
		assert.Empty(t, locs)
	})

	t.Run("references", func(t *testing.T) {
		locs, err := s.References(ctx, file, lsp.Position{Line: 0, Character: 6})
		require.NoError(t, err)
		assert.Len(t, locs, 2)
	})

	t.Run("completions", func(t *testing.T) {
		result, err := s.Completions(ctx, file, lsp.Position{Line: 2, Character: 8})
		require.NoError(t, err)
		assert.True(t, result.IsIncomplete)
		require.Len(t, result.Items, 2)
		assert.Equal(t, "print", result.Items[0].Label)
	})

	t.Run("hover", func(t *testing.T) {
		hover, err := s.Hover(ctx, file, lsp.Position{Line: 3, Character: 5})
		require.NoError(t, err)
		require.NotNil(t, hover)
		assert.Equal(t, "markdown", hover.Contents.Kind)
		assert.Equal(t, lsptest.HoverText(filepath.ToSlash(file), 3, 5), hover.Contents.Value)
	})

	t.Run("hover null", func(t *testing.T) {
		hover, err := s.Hover(ctx, file, lsp.Position{Line: lsptest.NullLine})
		require.NoError(t, err)
		assert.Nil(t, hover)
	})

	t.Run("server error", func(t *testing.T) {
		_, err := s.Hover(ctx, file, lsp.Position{Line: lsptest.ErrorLine})
		var rpcErr *lsp.RPCError
		require.True(t, errors.As(err, &rpcErr))
		assert.Equal(t, lsp.CodeInternalError, rpcErr.Code)

		// the session survives a failed request
		_, err = s.References(ctx, file, lsp.Position{})
		assert.NoError(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := s.DocumentSymbols(ctx, filepath.Join(root, "nope.py"))
		assert.Error(t, err)
		assert.True(t, s.IsOpen())
	})
}

func TestSessionConcurrentQueriesOnSameFile(t *testing.T) {
	root, file := newWorkspace(t)
	s := openSession(t, root, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(line int) {
			defer wg.Done()
			_, err := s.Hover(context.Background(), file, lsp.Position{Line: line})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestSessionClosed(t *testing.T) {
	root, file := newWorkspace(t)
	s := openSession(t, root, nil)

	require.NoError(t, s.Close())
	assert.False(t, s.IsOpen())

	done := make(chan error, 1)
	go func() {
		_, err := s.Hover(context.Background(), file, lsp.Position{})
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, lsp.ErrSessionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("query on a closed session did not return")
	}

	_, err := s.DocumentSymbols(context.Background(), file)
	assert.ErrorIs(t, err, lsp.ErrSessionClosed)

	// second close is a no-op
	assert.NoError(t, s.Close())
}

func TestRun(t *testing.T) {
	root, file := newWorkspace(t)
	opts := lsp.Options{
		Language: "python",
		RootDir:  root,
		Server:   lsptest.Config(t, nil),
		Logger:   zerolog.Nop(),
	}

	t.Run("closes after success", func(t *testing.T) {
		var session *lsp.Session
		err := lsp.Run(context.Background(), opts, func(ctx context.Context, s *lsp.Session) error {
			session = s
			_, err := s.Hover(ctx, file, lsp.Position{})
			return err
		})
		require.NoError(t, err)
		require.NotNil(t, session)
		assert.False(t, session.IsOpen())
	})

	t.Run("closes after error", func(t *testing.T) {
		boom := errors.New("boom")
		var session *lsp.Session
		err := lsp.Run(context.Background(), opts, func(ctx context.Context, s *lsp.Session) error {
			session = s
			return boom
		})
		assert.ErrorIs(t, err, boom)
		require.NotNil(t, session)
		assert.False(t, session.IsOpen())
	})

	t.Run("closes after panic", func(t *testing.T) {
		var session *lsp.Session
		assert.Panics(t, func() {
			_ = lsp.Run(context.Background(), opts, func(ctx context.Context, s *lsp.Session) error {
				session = s
				panic("scoped work failed")
			})
		})
		require.NotNil(t, session)
		assert.False(t, session.IsOpen())
	})
}

func TestOpenFailures(t *testing.T) {
	root, _ := newWorkspace(t)

	tests := []struct {
		name    string
		opts    lsp.Options
		wantErr error
	}{
		{
			name:    "unsupported language",
			opts:    lsp.Options{Language: "cobol", RootDir: root},
			wantErr: lsp.ErrUnsupportedLanguage,
		},
		{
			name: "missing binary",
			opts: lsp.Options{
				Language: "python",
				RootDir:  root,
				Server:   &lsp.ServerConfig{Name: "ghost", Command: "lsp-mcp-no-such-server-binary"},
			},
			wantErr: lsp.ErrServerNotInstalled,
		},
		{
			name: "initialize rejected",
			opts: lsp.Options{
				Language:       "python",
				RootDir:        root,
				Server:         lsptest.Config(t, map[string]string{lsptest.EnvFailInitialize: "1"}),
				StartupTimeout: 10 * time.Second,
			},
			wantErr: lsp.ErrInitializeFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Logger = zerolog.Nop()
			s, err := lsp.Open(context.Background(), tt.opts)
			require.Error(t, err)
			assert.Nil(t, s)

			var startErr *lsp.SessionStartError
			require.True(t, errors.As(err, &startErr))
			assert.Equal(t, tt.opts.Language, startErr.Language)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
