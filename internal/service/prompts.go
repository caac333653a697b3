package service

import "fmt"

const newBackstoryPrompt = `Create a fun, unique, and memorable backstory for this NFT pet based on the "%s" (maximum number of lines 4-5). 
 The backstory should include:
- The pet's name, type (e.g., parrot, dog, cat), and any interesting traits that make it stand out.
- A memorable friend, rival, or companion that has shaped the pet's journey (e.g., a close animal friend, a human, or another mythical creature).
- A special talent, skill, or characteristic that is unique to the pet (e.g., the parrot can sing entire songs perfectly, or the dog can fetch any object from miles away).
- A significant event or challenge in the pet's life that adds depth to its story (e.g., the pet had to overcome a fear, complete a journey, or achieve something that makes it rare and collectible).
- An ongoing or future quest that the pet can evolve with, allowing it to grow, learn, or unlock new traits over time. This should include the potential for the pet to develop new skills, form new bonds, or reach new milestones.
- Optional: Any unique requirements for the pet's interaction or friendship, such as earning happiness points, completing tasks, or unlocking certain abilities.
Keep the backstory engaging, emotional, and distinctive so that this NFT pet feels like a valuable, one-of-a-kind companion, with room for future growth and evolution.
Output only the backstory text, without any additional explanations or context.`

const enhanceBackstoryPrompt = `Enhance and expand upon the backstory: "%s" provided by the user for this NFT pet. Add more personality, unique traits, and memorable details that make the pet stand out. Make sure to include:
- A connection with a companion, friend, or rival that shapes the pet's journey.
- A special talent or skill that the pet possesses.
- A challenge or significant event that defines the pet's past and contributes to its evolution.
- Potential for future growth or quests that the pet could unlock as its journey continues.
Ensure the backstory is rich and unique, giving this pet a sense of life and evolution over time.
(maximum number of lines 4-5)
Output only the backstory text, without any additional explanations or context.`

const petNamePrompt = `Suggest one unique, creative, and memorable name for an NFT pet based on this backstory: "%s". 
          The name should be short (max 2 words), easy to pronounce, and reflect the pet's personality. Output only the name.`

const imagePrompt = `You are an AI agent that generates NFT pets.
Instructions:
- Always generate a **square** image of a **baby version** of the animal described in the prompt.
- Ensure the pet is centered with soft, aesthetic backgrounds (minimal, pastel, or abstract).
- Every pet should have a **distinctive accessory or visual trait** (e.g., goggles, scarf, beanie, cyber glasses).
- Make the pet visually unique and collectible — suitable for OpenSea-style NFT marketplaces.
Prompt from user: "%s"
Art Style: "%s"
If no art style is specified:
- Default to popular NFT art styles like:
  - Flat vector cartoon
  - Cute hand-drawn sketch
  - Watercolor illustration
  - Soft pixel art
- Avoid 3D realism unless explicitly requested.
- Avoid photographic or lifelike rendering.

If the user specifies a style, **strictly follow it**, but still ensure the result looks collectible, visually pleasing, and uniquely stylized.
Generate a high-quality, aesthetic image in the standard collectible NFT format.`

const evolveBackstoryPrompt = `
      Create a slightly evolved version of the following NFT pet backstory. 
      
      Important guidelines:
      - Keep most of the original story intact
      - Make only subtle changes that show growth or progression
      - Don't completely change character traits or major plot points
      - The changes should feel natural and connected to the original story
      - Keep the same writing style and tone
      
      Original Backstory: %s
      
      User guidance for evolution: %s
    `

const (
	defaultEvolveGuidance = "Make a subtle change to show character growth"
	defaultArtStyle       = "None specified"
)

func backstoryPrompt(prompt, existing string) string {
	if existing == "" {
		return fmt.Sprintf(newBackstoryPrompt, prompt)
	}
	return fmt.Sprintf(enhanceBackstoryPrompt, existing)
}

func namePrompt(backstory string) string {
	return fmt.Sprintf(petNamePrompt, backstory)
}

func imageInstructions(prompt, artStyle string) string {
	if artStyle == "" {
		artStyle = defaultArtStyle
	}
	return fmt.Sprintf(imagePrompt, prompt, artStyle)
}

func evolvePrompt(original, guidance string) string {
	if guidance == "" {
		guidance = defaultEvolveGuidance
	}
	return fmt.Sprintf(evolveBackstoryPrompt, original, guidance)
}
