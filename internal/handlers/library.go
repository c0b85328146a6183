package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"medialib/internal/bulk"
	"medialib/internal/library"
	"medialib/internal/models"
)

type filterRequest struct {
	Search     string   `json:"search"`
	MimePrefix string   `json:"mimePrefix"`
	TagIDs     []string `json:"tagIds"`
}

func (f filterRequest) toFilter() library.AssetFilter {
	return library.AssetFilter{Search: strings.TrimSpace(f.Search), MimePrefix: f.MimePrefix, TagIDs: f.TagIDs}
}

// selectionRequest identifies a set of rows either by replaying selection
// events against the listing of FolderID, or by explicit Keys.
type selectionRequest struct {
	FolderID *string         `json:"folderId"`
	Filter   filterRequest   `json:"filter"`
	Events   []library.Event `json:"events"`
	Keys     []library.Key   `json:"keys"`
}

type listingResponse struct {
	FolderID *string         `json:"folderId"`
	Keys     []library.Key   `json:"keys"`
	Folders  []models.Folder `json:"folders"`
	Assets   []models.Asset  `json:"assets"`
}

type selectionResponse struct {
	Selected    []library.Key `json:"selected"`
	Count       int           `json:"count"`
	AllSelected bool          `json:"allSelected"`
	LastIndex   *int          `json:"lastIndex"`
}

func (h HandlerSet) Listing(c *gin.Context) {
	var folderID *string
	if id := c.Query("folderId"); id != "" {
		folderID = &id
	}
	filter := library.AssetFilter{
		Search:     strings.TrimSpace(c.Query("search")),
		MimePrefix: c.Query("mime"),
		TagIDs:     c.QueryArray("tag"),
	}

	listing, folders, assets, err := library.LoadListing(c.Request.Context(), h.deps.Library, folderID, filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if folders == nil {
		folders = []models.Folder{}
	}
	if assets == nil {
		assets = []models.Asset{}
	}
	c.JSON(http.StatusOK, listingResponse{FolderID: folderID, Keys: listing.Keys(), Folders: folders, Assets: assets})
}

func (h HandlerSet) Selection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err)
		return
	}
	sel, err := h.replay(c, req)
	if err != nil {
		return
	}

	resp := selectionResponse{
		Selected:    sel.Selected(),
		Count:       sel.Len(),
		AllSelected: sel.IsAllSelected(),
	}
	if idx, ok := sel.LastIndex(); ok {
		resp.LastIndex = &idx
	}
	c.JSON(http.StatusOK, resp)
}

type createFolderRequest struct {
	Name     string  `json:"name" binding:"required,max=255"`
	ParentID *string `json:"parentId"`
}

func (h HandlerSet) CreateFolder(c *gin.Context) {
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err)
		return
	}
	folder, err := h.deps.Library.CreateFolder(c.Request.Context(), strings.TrimSpace(req.Name), req.ParentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, folder)
}

type bulkMoveRequest struct {
	selectionRequest
	TargetFolderID *string `json:"targetFolderId"`
}

func (h HandlerSet) BulkMove(c *gin.Context) {
	var req bulkMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err)
		return
	}
	keys, ok := h.resolveKeys(c, req.selectionRequest)
	if !ok {
		return
	}

	result, err := h.deps.Bulk.Move(c.Request.Context(), keys, req.TargetFolderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newResultResponse(result))
}

type bulkDeleteRequest struct {
	selectionRequest
	Recursive       bool `json:"recursive"`
	ReparentOrphans bool `json:"reparentOrphans"`
}

func (h HandlerSet) BulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err)
		return
	}
	keys, ok := h.resolveKeys(c, req.selectionRequest)
	if !ok {
		return
	}

	result, err := h.deps.Bulk.Delete(c.Request.Context(), keys, bulk.DeleteOptions{
		Recursive:       req.Recursive,
		ReparentOrphans: req.ReparentOrphans,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newResultResponse(result))
}

func (h HandlerSet) resolveKeys(c *gin.Context, req selectionRequest) ([]library.Key, bool) {
	if len(req.Events) == 0 {
		if len(req.Keys) == 0 {
			badRequest(c, "empty_selection", errors.New("no keys or events given"))
			return nil, false
		}
		return req.Keys, true
	}

	sel, err := h.replay(c, req)
	if err != nil {
		return nil, false
	}
	keys := sel.Selected()
	if len(keys) == 0 {
		badRequest(c, "empty_selection", errors.New("events selected nothing"))
		return nil, false
	}
	return keys, true
}

// replay rebuilds the listing the client saw and runs its events through a
// fresh selection. It writes the error response itself.
func (h HandlerSet) replay(c *gin.Context, req selectionRequest) (*library.Selection, error) {
	listing, _, _, err := library.LoadListing(c.Request.Context(), h.deps.Library, req.FolderID, req.Filter.toFilter())
	if err != nil {
		h.writeError(c, err)
		return nil, err
	}
	sel := library.NewSelection(listing)
	if err := sel.Apply(req.Events...); err != nil {
		badRequest(c, "invalid_event", err)
		return nil, err
	}
	return sel, nil
}
