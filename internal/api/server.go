// Package api exposes the HTTP surface: collection and paper
// management, ingestion control, hybrid search, and grounded chat.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"paperchat/internal/blobstore"
	"paperchat/internal/config"
	"paperchat/internal/embedding"
	"paperchat/internal/models"
	"paperchat/internal/providers"
	"paperchat/internal/rag"
	"paperchat/internal/search"
	"paperchat/internal/storage"
	"paperchat/internal/util"
	"paperchat/internal/workflows"
)

type Server struct {
	cfg              config.Config
	db               *storage.DB
	collectionRepo   *storage.CollectionRepo
	paperRepo        *storage.PaperRepo
	chunkRepo        *storage.ChunkRepo
	conversationRepo *storage.ConversationRepo
	blobs            blobstore.Store
	engine           *search.Engine
	orchestrator     *rag.Orchestrator
	temporal         tclient.Client
	logger           *zap.Logger
}

func NewServer(cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		panic(err)
	}
	blobs, err := blobstore.NewFSStore(cfg.BlobRoot)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}

	chunkRepo := storage.NewChunkRepo(db)
	paperRepo := storage.NewPaperRepo(db)
	conversationRepo := storage.NewConversationRepo(db)
	gateway := embedding.NewGateway(pm.FirstEmbedProvider(), embedding.Options{
		Dimension:       cfg.EmbedDim,
		BatchSize:       cfg.EmbedBatchSize,
		Parallelism:     cfg.EmbedParallel,
		InterBatchDelay: time.Duration(cfg.EmbedBatchDelayMS) * time.Millisecond,
	})
	engine := search.NewEngine(chunkRepo, gateway, search.Options{
		TopK:           cfg.SearchTopK,
		SemanticWeight: cfg.SemanticWeight,
		RRFK:           cfg.RRFK,
	}, logger)
	orchestrator := rag.NewOrchestrator(engine, paperRepo, conversationRepo, pm.FirstLLMProvider(), rag.Options{
		HistoryWindow:   cfg.HistoryWindow,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}, logger)

	return &Server{
		cfg:              cfg,
		db:               db,
		collectionRepo:   storage.NewCollectionRepo(db),
		paperRepo:        paperRepo,
		chunkRepo:        chunkRepo,
		conversationRepo: conversationRepo,
		blobs:            blobs,
		engine:           engine,
		orchestrator:     orchestrator,
		temporal:         tc,
		logger:           logger,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/collections", s.handleCollections)
	mux.HandleFunc("/collections/", s.handleCollectionScoped)
	mux.HandleFunc("/conversations/", s.handleConversationScoped)
	mux.HandleFunc("/chat", s.handleChat)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func ownerID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Owner-ID")); v != "" {
		return v
	}
	return "local"
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		collections, err := s.collectionRepo.ListCollections(r.Context(), ownerID(r))
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"collections": collections})
	case http.MethodPost:
		var req struct {
			Name        string `json:"name"`
			SearchQuery string `json:"search_query"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("name is required"))
			return
		}
		collection := models.Collection{
			CollectionID: uuid.NewString(),
			OwnerID:      ownerID(r),
			Name:         req.Name,
			SearchQuery:  req.SearchQuery,
			Description:  req.Description,
		}
		if err := s.collectionRepo.CreateCollection(r.Context(), collection); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, collection)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleCollectionScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/collections/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	collectionID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		collection, err := s.collectionRepo.GetCollection(r.Context(), collectionID)
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, collection)
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "papers":
		s.handleCollectionPapers(w, r, collectionID)
	case len(parts) == 3 && parts[1] == "papers":
		s.handleCollectionPaper(w, r, collectionID, parts[2])
	case len(parts) == 2 && parts[1] == "upload":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleUpload(w, r, collectionID)
	case len(parts) == 2 && parts[1] == "ingest":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleIngest(w, r, collectionID)
	case len(parts) == 2 && parts[1] == "progress":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleProgress(w, r, collectionID)
	case len(parts) == 2 && parts[1] == "backfill":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleBackfill(w, r, collectionID)
	case len(parts) == 2 && parts[1] == "search":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleSearch(w, r, collectionID)
	case len(parts) == 2 && parts[1] == "conversations":
		s.handleConversations(w, r, collectionID)
	case len(parts) == 2 && parts[1] == "chat":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var req struct {
			ConversationID string `json:"conversation_id"`
			Question       string `json:"question"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		s.chat(w, r, collectionID, req.ConversationID, req.Question)
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleCollectionPapers(w http.ResponseWriter, r *http.Request, collectionID string) {
	switch r.Method {
	case http.MethodGet:
		papers, err := s.paperRepo.ListPapersByCollection(r.Context(), collectionID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"papers": papers})
	case http.MethodPost:
		var req struct {
			PaperID       string   `json:"paper_id"`
			Title         string   `json:"title"`
			Abstract      string   `json:"abstract"`
			Authors       []string `json:"authors"`
			Year          *int     `json:"year"`
			Venue         string   `json:"venue"`
			PDFURL        string   `json:"pdf_url"`
			SourcePaperID string   `json:"source_paper_id"`
			RelationType  string   `json:"relation_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		if strings.TrimSpace(req.PaperID) == "" {
			req.PaperID = uuid.NewString()
		}
		if strings.TrimSpace(req.PDFURL) == "" && strings.TrimSpace(req.Title) == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("title or pdf_url is required"))
			return
		}
		paper := models.Paper{
			PaperID:  req.PaperID,
			Title:    req.Title,
			Abstract: req.Abstract,
			Authors:  req.Authors,
			Year:     req.Year,
			Venue:    req.Venue,
			PDFURL:   req.PDFURL,
			Status:   models.StatusPending,
		}
		if err := s.paperRepo.UpsertPaper(r.Context(), paper); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if err := s.collectionRepo.AddPaperToCollection(r.Context(), models.CollectionPaper{
			CollectionID:  collectionID,
			PaperID:       req.PaperID,
			SourcePaperID: req.SourcePaperID,
			RelationType:  req.RelationType,
		}); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, paper)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleCollectionPaper(w http.ResponseWriter, r *http.Request, collectionID, paperID string) {
	switch r.Method {
	case http.MethodGet:
		paper, err := s.paperRepo.GetPaperByID(r.Context(), paperID)
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, paper)
	case http.MethodDelete:
		if err := s.collectionRepo.RemovePaperFromCollection(r.Context(), collectionID, paperID); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": paperID})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, collectionID string) {
	if err := r.ParseMultipartForm(128 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		if single, ok := firstSingleFile(r.MultipartForm.File); ok {
			files = append(files, single)
		}
	}
	if len(files) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}

	type uploadResult struct {
		Filename string `json:"filename"`
		PaperID  string `json:"paper_id"`
	}
	out := make([]uploadResult, 0, len(files))
	for _, fh := range files {
		if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
			continue
		}
		src, err := fh.Open()
		if err != nil {
			writeErr(w, http.StatusInternalServerError, fmt.Errorf("open upload: %w", err))
			return
		}
		paperID, err := util.SHA256HexFromReader(src)
		if err != nil {
			src.Close()
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if _, err := src.Seek(0, 0); err != nil {
			src.Close()
			writeErr(w, http.StatusInternalServerError, fmt.Errorf("rewind upload: %w", err))
			return
		}
		key := blobstore.PDFKey(paperID)
		if err := s.blobs.Put(r.Context(), key, src); err != nil {
			src.Close()
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		src.Close()

		if err := s.paperRepo.UpsertPaper(r.Context(), models.Paper{
			PaperID:    paperID,
			Title:      strings.TrimSuffix(fh.Filename, ".pdf"),
			StorageKey: key,
			Status:     models.StatusPending,
		}); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if err := s.collectionRepo.AddPaperToCollection(r.Context(), models.CollectionPaper{
			CollectionID: collectionID,
			PaperID:      paperID,
		}); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, uploadResult{Filename: fh.Filename, PaperID: paperID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploaded": out})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request, collectionID string) {
	var req struct {
		PaperIDs []string `json:"paper_ids"`
		Force    bool     `json:"force"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	wfID := "ingest-" + collectionID
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       wfID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.CollectionIngestWorkflow, workflows.CollectionIngestInput{
		CollectionID:          collectionID,
		PaperIDs:              req.PaperIDs,
		MaxConcurrentChildren: s.cfg.IngestMaxChildren,
		Force:                 req.Force,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, collectionID string) {
	var prog workflows.CollectionIngestProgress
	resp, err := s.temporal.QueryWorkflow(r.Context(), "ingest-"+collectionID, "", workflows.QueryGetProgress)
	if err != nil {
		// Fall back to DB-derived progress when no live workflow answers.
		counts, cErr := s.paperRepo.CountPapersByStatus(r.Context(), collectionID)
		if cErr != nil {
			writeErr(w, http.StatusInternalServerError, cErr)
			return
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		writeJSON(w, http.StatusOK, workflows.CollectionIngestProgress{
			CollectionID: collectionID,
			Total:        total,
			Done:         counts[models.StatusCompleted] + counts[models.StatusFailed],
			Failed:       counts[models.StatusFailed],
		})
		return
	}
	if err := resp.Get(&prog); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request, collectionID string) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       "backfill-" + collectionID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.BackfillWorkflow, workflows.BackfillInput{
		CollectionID:          collectionID,
		Mode:                  req.Mode,
		MaxConcurrentChildren: s.cfg.IngestMaxChildren,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, collectionID string) {
	var req struct {
		Query string `json:"query"`
		Mode  string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}
	var (
		results []models.RankedChunk
		err     error
	)
	if strings.EqualFold(req.Mode, "semantic") {
		results, err = s.engine.Semantic(r.Context(), collectionID, req.Query)
	} else {
		results, err = s.engine.Hybrid(r.Context(), collectionID, req.Query)
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	for i := range results {
		results[i].Content = util.Snippet(results[i].Content, 400)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request, collectionID string) {
	switch r.Method {
	case http.MethodGet:
		conversations, err := s.conversationRepo.ListConversations(r.Context(), collectionID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
	case http.MethodPost:
		var req struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		conversation := models.Conversation{
			ConversationID: uuid.NewString(),
			CollectionID:   collectionID,
			OwnerID:        ownerID(r),
			Title:          req.Title,
		}
		if err := s.conversationRepo.CreateConversation(r.Context(), conversation); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, conversation)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleConversationScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/conversations/"), "/"), "/")
	if len(parts) != 2 || parts[1] != "messages" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	messages, err := s.conversationRepo.ListMessages(r.Context(), parts[0])
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		CollectionID   string `json:"collection_id"`
		ConversationID string `json:"conversation_id"`
		Question       string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	s.chat(w, r, req.CollectionID, req.ConversationID, req.Question)
}

// chat answers a question against a collection, creating a
// conversation when none is given and persisting both turns. The
// conversation history read happens before the user turn is appended,
// so the question is not duplicated in the prompt.
func (s *Server) chat(w http.ResponseWriter, r *http.Request, collectionID, conversationID, question string) {
	question = strings.TrimSpace(question)
	if collectionID == "" || question == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("collection_id and question are required"))
		return
	}

	if conversationID == "" {
		conversationID = uuid.NewString()
		if err := s.conversationRepo.CreateConversation(r.Context(), models.Conversation{
			ConversationID: conversationID,
			CollectionID:   collectionID,
			OwnerID:        ownerID(r),
			Title:          util.Snippet(question, 80),
		}); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
	}

	answer, err := s.orchestrator.Ask(r.Context(), collectionID, conversationID, question)
	if err != nil {
		s.logger.Error("chat failed",
			zap.String("collection_id", collectionID),
			zap.Error(err))
		writeErr(w, http.StatusBadGateway, fmt.Errorf("failed to generate a response"))
		return
	}

	if err := s.conversationRepo.AppendMessage(r.Context(), models.Message{
		MessageID:      uuid.NewString(),
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        question,
	}); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.conversationRepo.AppendMessage(r.Context(), models.Message{
		MessageID:      uuid.NewString(),
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        answer.Text,
		Grounding:      answer.Grounding,
	}); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"answer":          answer.Text,
		"grounding":       answer.Grounding,
		"provider":        answer.Provider,
		"model":           answer.Model,
	})
}

func firstSingleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}
