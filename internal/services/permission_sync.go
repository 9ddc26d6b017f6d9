package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"salesadmin/internal/metrics"
	"salesadmin/internal/models"
	"salesadmin/pkg/lock"
	"salesadmin/pkg/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// permissionSyncLockName 路由同步使用的分布式锁名
const permissionSyncLockName = "permission-sync"

// Locker 分布式锁
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error)
}

// RouteInfo 路由表中的一条路由
type RouteInfo struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// SyncedPermission 一条同步后的按钮权限
type SyncedPermission struct {
	ButtonID    uint   `json:"button_id"`
	MenuID      uint   `json:"menu_id"`
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Created     bool   `json:"created"`
}

// RouteCollision 结构不同的两条路由推导出同一标识，共用一个按钮
type RouteCollision struct {
	Identifier    string `json:"identifier"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	ConflictsWith string `json:"conflicts_with"`
}

// RouteSyncError 单条路由同步失败
type RouteSyncError struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Error  string `json:"error"`
}

// SyncReport 同步结果
type SyncReport struct {
	Permissions  []SyncedPermission `json:"permissions"`
	Created      int                `json:"created"`
	Updated      int                `json:"updated"`
	MarkedAbsent int                `json:"marked_absent"`
	Errors       []RouteSyncError   `json:"errors"`
	Collisions   []RouteCollision   `json:"collisions"`
	Skipped      bool               `json:"skipped"` // 其他实例正在同步
	Duration     time.Duration      `json:"duration"`
}

// PermissionSyncService 把路由表同步为按钮权限，只新增或更新，从不删除
type PermissionSyncService struct {
	db          *gorm.DB
	identifiers *IdentifierGenerator
	locker      Locker
	lockTTL     time.Duration
	metrics     *metrics.Metrics
}

// NewPermissionSyncService 创建路由同步服务，locker 为 nil 时不加锁
func NewPermissionSyncService(db *gorm.DB, identifiers *IdentifierGenerator, locker Locker, lockTTL time.Duration, m *metrics.Metrics) *PermissionSyncService {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &PermissionSyncService{
		db:          db,
		identifiers: identifiers,
		locker:      locker,
		lockTTL:     lockTTL,
		metrics:     m,
	}
}

// ScanAndSync 扫描路由并同步按钮权限，单条路由失败不会中断整体同步
func (s *PermissionSyncService) ScanAndSync(ctx context.Context, routes []RouteInfo) (*SyncReport, error) {
	appLogger := logger.GetLogger()
	start := time.Now()
	report := &SyncReport{Permissions: []SyncedPermission{}, Errors: []RouteSyncError{}, Collisions: []RouteCollision{}}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, permissionSyncLockName, s.lockTTL)
		switch {
		case errors.Is(err, lock.ErrNotAcquired):
			appLogger.Info("Permission sync is running on another instance, skipping")
			report.Skipped = true
			return report, nil
		case err != nil:
			appLogger.Warnf("Failed to acquire permission sync lock, running unlocked: %v", err)
		default:
			defer release()
		}
	}

	routes = s.filterRoutes(routes)

	resolver, err := s.newMenuResolver(ctx)
	if err != nil {
		return nil, err
	}

	// seen 按 (标识, 菜单) 记录本次同步到的按钮；failed 中的标识本次不做缺失标记
	seen := make(map[string]bool, len(routes))
	failed := make(map[string]bool)
	shapes := make(map[string]string, len(routes))
	for _, route := range routes {
		identifier := s.identifiers.Identifier(route.Method, route.Path)
		shape := s.identifiers.RouteShape(route.Path)
		if first, ok := shapes[identifier]; !ok {
			shapes[identifier] = shape
		} else if first != shape {
			report.Collisions = append(report.Collisions, RouteCollision{
				Identifier:    identifier,
				Method:        route.Method,
				Path:          route.Path,
				ConflictsWith: first,
			})
			appLogger.WithFields(logrus.Fields{
				"identifier": identifier,
				"path":       route.Path,
				"conflicts":  first,
			}).Warn("Routes with different shapes share one permission identifier")
		}

		synced, err := s.syncRoute(ctx, resolver, route, identifier)
		if err != nil {
			failed[identifier] = true
			report.Errors = append(report.Errors, RouteSyncError{Method: route.Method, Path: route.Path, Error: err.Error()})
			s.metrics.PermissionSyncTotal.WithLabelValues("failed").Inc()
			appLogger.WithFields(logrus.Fields{
				"method":     route.Method,
				"path":       route.Path,
				"identifier": identifier,
			}).Errorf("Failed to sync route permission: %v", err)
			continue
		}
		seen[buttonKey(identifier, synced.MenuID)] = true

		if synced.Created {
			report.Created++
			s.metrics.PermissionSyncTotal.WithLabelValues("created").Inc()
		} else {
			report.Updated++
			s.metrics.PermissionSyncTotal.WithLabelValues("updated").Inc()
		}
		report.Permissions = append(report.Permissions, *synced)
	}

	if len(routes) > 0 {
		marked, err := s.markAbsent(ctx, seen, failed)
		if err != nil {
			report.Errors = append(report.Errors, RouteSyncError{Error: fmt.Sprintf("mark absent: %v", err)})
		}
		report.MarkedAbsent = marked
		s.metrics.PermissionSyncTotal.WithLabelValues("absent").Add(float64(marked))
	} else {
		appLogger.Warn("Route surface is empty, skipping absence marking")
	}

	report.Duration = time.Since(start)
	s.metrics.PermissionSyncDuration.Observe(report.Duration.Seconds())
	appLogger.Infof("Permission sync finished: %d created, %d updated, %d marked absent, %d errors in %s",
		report.Created, report.Updated, report.MarkedAbsent, len(report.Errors), report.Duration)

	return report, nil
}

// filterRoutes 只保留接口根路径下的路由，去掉 HEAD/OPTIONS 与重复项，结果按路径排序
func (s *PermissionSyncService) filterRoutes(routes []RouteInfo) []RouteInfo {
	root := s.identifiers.APIRoot()
	seen := make(map[string]bool, len(routes))
	result := make([]RouteInfo, 0, len(routes))
	for _, route := range routes {
		method := strings.ToUpper(route.Method)
		if method == "HEAD" || method == "OPTIONS" {
			continue
		}
		if route.Path != root && !strings.HasPrefix(route.Path, root+"/") {
			continue
		}
		key := method + " " + route.Path
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, RouteInfo{Method: method, Path: route.Path})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Path == result[j].Path {
			return result[i].Method < result[j].Method
		}
		return result[i].Path < result[j].Path
	})
	return result
}

func (s *PermissionSyncService) syncRoute(ctx context.Context, resolver *menuResolver, route RouteInfo, identifier string) (*SyncedPermission, error) {
	menuID, err := resolver.resolve(ctx, s.identifiers.StripRoot(route.Path))
	if err != nil {
		return nil, fmt.Errorf("resolve menu: %w", err)
	}

	name := s.identifiers.Name(route.Method, route.Path)
	description := s.identifiers.Description(route.Method, route.Path)
	synced := &SyncedPermission{
		MenuID:      menuID,
		Identifier:  identifier,
		Name:        name,
		Description: description,
		Method:      route.Method,
		Path:        route.Path,
	}

	db := s.db.WithContext(ctx)
	var button models.Button
	err = db.Where("identifier = ? AND menu_id = ?", identifier, menuID).First(&button).Error
	if err == nil {
		updates := map[string]interface{}{
			"name":        name,
			"description": description,
			"method":      route.Method,
			"route_path":  route.Path,
			"status":      models.ButtonStatusActive,
		}
		if err := db.Model(&button).Updates(updates).Error; err != nil {
			return nil, err
		}
		synced.ButtonID = button.ID
		return synced, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	button = models.Button{
		Name:        name,
		Identifier:  identifier,
		MenuID:      menuID,
		Status:      models.ButtonStatusActive,
		Source:      models.ButtonSourceScan,
		Method:      route.Method,
		RoutePath:   route.Path,
		Description: description,
	}
	if err := db.Create(&button).Error; err != nil {
		return nil, err
	}
	synced.ButtonID = button.ID
	synced.Created = true
	return synced, nil
}

func buttonKey(identifier string, menuID uint) string {
	return fmt.Sprintf("%s\x00%d", identifier, menuID)
}

// markAbsent 把本次未同步到的扫描按钮标记为 absent，手工按钮不处理。
// 路由改挂到新菜单后，旧菜单下的同名按钮同样标记为 absent。
func (s *PermissionSyncService) markAbsent(ctx context.Context, seen, failed map[string]bool) (int, error) {
	var buttons []models.Button
	if err := s.db.WithContext(ctx).
		Where("source = ? AND status <> ?", models.ButtonSourceScan, models.ButtonStatusAbsent).
		Find(&buttons).Error; err != nil {
		return 0, err
	}

	ids := make([]uint, 0)
	for _, b := range buttons {
		if failed[b.Identifier] || seen[buttonKey(b.Identifier, b.MenuID)] {
			continue
		}
		ids = append(ids, b.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).Model(&models.Button{}).
		Where("id IN ?", ids).Update("status", models.ButtonStatusAbsent)
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// menuResolver 由路由推导所属菜单：截掉首个动态段后逐级向上匹配菜单路径，都不匹配时挂到兜底菜单
type menuResolver struct {
	db         *gorm.DB
	byPath     map[string]uint
	fallbackID uint
}

func (s *PermissionSyncService) newMenuResolver(ctx context.Context) (*menuResolver, error) {
	var menus []models.Menu
	if err := s.db.WithContext(ctx).Select("id", "path").Order("id").Find(&menus).Error; err != nil {
		return nil, fmt.Errorf("load menus: %w", err)
	}
	byPath := make(map[string]uint, len(menus))
	for _, m := range menus {
		p := normalizeMenuPath(m.Path)
		if p == "" {
			continue
		}
		if _, exists := byPath[p]; !exists {
			byPath[p] = m.ID
		}
	}
	return &menuResolver{db: s.db, byPath: byPath}, nil
}

func (r *menuResolver) resolve(ctx context.Context, strippedPath string) (uint, error) {
	segments := make([]string, 0)
	for _, segment := range splitPath(strippedPath) {
		if isDynamicSegment(segment) {
			break
		}
		segments = append(segments, segment)
	}

	for i := len(segments); i > 0; i-- {
		candidate := "/" + strings.Join(segments[:i], "/")
		if id, ok := r.byPath[candidate]; ok {
			return id, nil
		}
	}
	return r.fallback(ctx)
}

// fallback 获取（不存在则创建）兜底菜单
func (r *menuResolver) fallback(ctx context.Context) (uint, error) {
	if r.fallbackID != 0 {
		return r.fallbackID, nil
	}

	db := r.db.WithContext(ctx)
	var menu models.Menu
	err := db.Where("name = ?", models.FallbackMenuName).First(&menu).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		menu = models.Menu{
			Name:        models.FallbackMenuName,
			DisplayName: models.FallbackMenuDisplayName,
			Path:        models.FallbackMenuPath,
			Icon:        "api",
			SortOrder:   999,
			IsVisible:   false,
			Description: "未匹配到菜单的接口权限",
		}
		err = db.Create(&menu).Error
	}
	if err != nil {
		return 0, err
	}
	r.fallbackID = menu.ID
	return menu.ID, nil
}

func normalizeMenuPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return "/" + strings.Trim(p, "/")
}
