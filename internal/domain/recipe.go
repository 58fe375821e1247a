package domain

// Recipe is a schema.org Recipe in JSON-LD form, as produced by the
// generation step and accepted by Mealie's html-or-json importer.
type Recipe struct {
	Context            string      `json:"@context"`
	Type               string      `json:"@type"`
	Name               string      `json:"name"`
	Image              string      `json:"image,omitempty"`
	URL                string      `json:"url,omitempty"`
	Description        string      `json:"description"`
	RecipeIngredient   []string    `json:"recipeIngredient"`
	RecipeInstructions []HowToStep `json:"recipeInstructions"`
	Keywords           []string    `json:"keywords,omitempty"`
}

// HowToStep is one instruction of a Recipe.
type HowToStep struct {
	Type string `json:"@type"`
	Text string `json:"text"`
}

// Normalize fills in the JSON-LD constants a generator may have omitted.
func (r *Recipe) Normalize() {
	if r.Context == "" {
		r.Context = "https://schema.org"
	}
	if r.Type == "" {
		r.Type = "Recipe"
	}
	for i := range r.RecipeInstructions {
		if r.RecipeInstructions[i].Type == "" {
			r.RecipeInstructions[i].Type = "HowToStep"
		}
	}
	if r.RecipeIngredient == nil {
		r.RecipeIngredient = []string{}
	}
	if r.RecipeInstructions == nil {
		r.RecipeInstructions = []HowToStep{}
	}
}

// RecipeSummary is what the UI needs to link to a recipe in Mealie.
type RecipeSummary struct {
	ID          string `json:"id,omitempty"`
	Slug        string `json:"slug,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	URL         string `json:"url"`
}
