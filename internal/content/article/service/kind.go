package service

import (
	"herald/internal/content/article/models"
	"herald/internal/publication/registry"
)

// Kind registers articles with the publication registry. Save lets approved
// records mirror their publish time onto the article.
func Kind(st Store) registry.Kind[*models.Article] {
	return registry.Kind[*models.Article]{
		Tag:     models.Tag,
		Resolve: st.FindByID,
		Save:    st.Save,
	}
}
